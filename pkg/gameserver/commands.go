package gameserver

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/pcxsh/hardcoreban/pkg/service"
	"github.com/pcxsh/hardcoreban/pkg/store"
	"github.com/pcxsh/hardcoreban/pkg/timefmt"
)

// Admin is the administrative command surface: thin wrappers over the ban
// service that render human-readable results. Every mutating command reports
// explicit success or failure.
type Admin struct {
	svc     *service.Service
	st      *store.Store
	metrics *Metrics // may be nil outside a running server
}

// NewAdmin builds the admin surface. metrics may be nil.
func NewAdmin(svc *service.Service, st *store.Store, metrics *Metrics) *Admin {
	return &Admin{svc: svc, st: st, metrics: metrics}
}

// Check reports one subject's ban status.
func (a *Admin) Check(subject uuid.UUID) string {
	ban := a.svc.GetBan(subject)
	if ban == nil {
		return fmt.Sprintf("%s is not banned", subject)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) is banned for another %s\n", ban.DisplayName, ban.SubjectID, timefmt.Display(ban.TimeLeft(time.Now())))
	fmt.Fprintf(&b, "  issued by %s at %s", ban.IssuedBy, ban.IssuedAt.Format(time.RFC3339))
	if ban.Reason != "" {
		fmt.Fprintf(&b, "\n  reason: %s", ban.Reason)
	}
	return b.String()
}

// List renders every active ban as a table.
func (a *Admin) List() string {
	bans := a.svc.ListDetails()
	if len(bans) == 0 {
		return "no active bans"
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSUBJECT\tTIME LEFT\tISSUED BY\tREASON")
	now := time.Now()
	for _, ban := range bans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ban.DisplayName, ban.SubjectID, timefmt.Compact(ban.TimeLeft(now)), ban.IssuedBy, ban.Reason)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// Remove unbans one subject.
func (a *Admin) Remove(subject uuid.UUID) string {
	if !a.svc.Unban(subject) {
		return fmt.Sprintf("%s was not banned", subject)
	}
	if a.metrics != nil {
		a.metrics.AdminUnbans.Add(1)
	}
	return fmt.Sprintf("unbanned %s", subject)
}

// ClearAll removes every ban.
func (a *Admin) ClearAll() string {
	n := a.svc.ClearAll()
	return fmt.Sprintf("cleared %d ban(s)", n)
}

// Raw executes one raw SQL statement against the ban store. Privileged
// diagnostic only; query output is capped by the store.
func (a *Admin) Raw(statement string) (string, error) {
	res, err := a.st.ExecRaw(statement)
	if err != nil {
		return "", err
	}

	if !res.IsQuery {
		return fmt.Sprintf("%d row(s) affected", res.RowsAffected), nil
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
	if res.Truncated {
		fmt.Fprintf(&b, "(showing first %d rows)\n", store.RawRowLimit)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
