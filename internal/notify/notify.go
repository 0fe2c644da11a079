// Package notify mails a short report after every run.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"portalgrades/internal/results"
	"portalgrades/internal/runner"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("portalgrades/internal/notify")

type Config struct {
	Server       string   `json:"server" env:"SERVER"`
	Port         int      `json:"port" env:"PORT" validate:"omitempty,gte=1,lte=65535"`
	EmailAddress string   `json:"email_address" env:"EMAIL_ADDRESS" validate:"omitempty,email"`
	Password     string   `json:"password" env:"PASSWORD"`
	To           []string `json:"to" env:"TO" validate:"dive,email"`
}

// Enabled reports if there is enough configured to send anything.
func (c Config) Enabled() bool {
	return c.Server != "" && c.EmailAddress != "" && len(c.To) > 0
}

type sendFunc func(mail *email.Email, addr string, auth smtp.Auth) error

// Mailer implements runner.Notifier over SMTP.
type Mailer struct {
	config Config
	send   sendFunc
}

func NewMailer(config Config) Mailer {
	return Mailer{
		config: config,
		send: func(mail *email.Email, addr string, auth smtp.Auth) error {
			return mail.Send(addr, auth)
		},
	}
}

func (m Mailer) Notify(ctx context.Context, summary runner.Summary) error {
	_, span := tracer.Start(ctx, "Notify")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Portal Grades <%s>", m.config.EmailAddress)
	mail.To = m.config.To
	mail.Subject = Subject(summary)
	mail.Text = []byte(Body(summary))

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := m.send(mail, addr, smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = m.send(mail, addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("send run report: %w", err)
	}
	return nil
}

func Subject(summary runner.Summary) string {
	return fmt.Sprintf(
		"Grade scrape %s: %d/%d succeeded",
		summary.StartedAt.Format(time.DateOnly),
		summary.Succeeded,
		summary.Total+summary.Skipped,
	)
}

// Body renders the plain text report, failures are listed by kind then
// portal.
func Body(summary runner.Summary) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Run %s\n", summary.RunID)
	fmt.Fprintf(b, "Started:  %s\n", summary.StartedAt.Format(time.DateTime))
	fmt.Fprintf(b, "Finished: %s (%s)\n\n", summary.FinishedAt.Format(time.DateTime), summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
	fmt.Fprintf(b, "Succeeded: %d\n", summary.Succeeded)
	fmt.Fprintf(b, "Failed:    %d\n", summary.Failed)
	if summary.Skipped > 0 {
		fmt.Fprintf(b, "Skipped:   %d (run interrupted)\n", summary.Skipped)
	}

	if len(summary.ByKind) > 0 {
		kinds := make([]string, 0, len(summary.ByKind))
		for kind := range summary.ByKind {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		b.WriteString("\nFailures by kind:\n")
		for _, kind := range kinds {
			fmt.Fprintf(b, "  %-16s %d\n", kind, summary.ByKind[results.FailureKind(kind)])
		}
	}

	if len(summary.Failures) > 0 {
		failures := make([]results.JobResult, len(summary.Failures))
		copy(failures, summary.Failures)
		sort.SliceStable(failures, func(i, j int) bool {
			ki, kj := detail(failures[i]).Kind, detail(failures[j]).Kind
			if ki != kj {
				return ki < kj
			}
			return failures[i].Portal < failures[j].Portal
		})

		b.WriteString("\nFailed jobs:\n")
		for _, f := range failures {
			d := detail(f)
			fmt.Fprintf(b, "  [%s] %s student %d: %s\n", d.Kind, f.Portal, f.DatabaseID, d.Message)
		}
	}
	return b.String()
}

func detail(r results.JobResult) results.FailureDetail {
	if r.Failure == nil {
		return results.FailureDetail{Kind: results.KindInternal}
	}
	return *r.Failure
}
