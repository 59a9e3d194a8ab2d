// Package mailer e-mails reservation outcomes to customers.  Confirmations
// carry the reservation number as an inline QR code that the box office
// scans at the door.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

const qrName = "ticket.png"

// Sender delivers built messages.  *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer implements queue.Mailer over SMTP.
type Mailer struct {
	from   string
	sender Sender
	log    *zap.Logger
}

var _ queue.Mailer = (*Mailer)(nil)

// New dials the configured SMTP server for each message.
func New(cfg config.SMTPConfig, log *zap.Logger) *Mailer {
	return NewWithSender(cfg.From, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), log)
}

func NewWithSender(from string, s Sender, log *zap.Logger) *Mailer {
	return &Mailer{from: from, sender: s, log: log}
}

type ticketData struct {
	Name     string
	Number   string
	Film     string
	Room     string
	StartsAt string
	Seats    string
	Total    string
	Reason   string
	QR       string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<html><body>
<h2>Your tickets for {{.Film}}</h2>
<p>Hi {{.Name}}, your reservation <b>{{.Number}}</b> is confirmed.</p>
<table>
<tr><td>Showtime</td><td>{{.StartsAt}}</td></tr>
<tr><td>Room</td><td>{{.Room}}</td></tr>
<tr><td>Seats</td><td>{{.Seats}}</td></tr>
<tr><td>Total</td><td>{{.Total}}</td></tr>
</table>
<p>Show this code at the entrance:</p>
<img src="cid:{{.QR}}" alt="{{.Number}}"/>
</body></html>`))

var cancellationTmpl = template.Must(template.New("cancellation").Parse(`<html><body>
<h2>Reservation {{.Number}} cancelled</h2>
<p>Hi {{.Name}}, your reservation for {{.Film}} on {{.StartsAt}} (seats {{.Seats}}) has been cancelled.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
</body></html>`))

func (m *Mailer) SendConfirmation(_ context.Context, ev queue.ReservationEvent) error {
	png, err := qrPNG(ev.ReservationNumber)
	if err != nil {
		return fmt.Errorf("qr code: %w", err)
	}
	body, err := render(confirmationTmpl, data(ev))
	if err != nil {
		return err
	}
	msg := m.message(ev, "Your tickets - reservation "+ev.ReservationNumber, body)
	msg.Embed(qrName, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(png)
		return err
	}), gomail.SetHeader(map[string][]string{"Content-Type": {"image/png"}}))
	return m.send(msg, ev)
}

func (m *Mailer) SendCancellation(_ context.Context, ev queue.ReservationEvent) error {
	body, err := render(cancellationTmpl, data(ev))
	if err != nil {
		return err
	}
	return m.send(m.message(ev, "Reservation "+ev.ReservationNumber+" cancelled", body), ev)
}

func (m *Mailer) message(ev queue.ReservationEvent, subject, html string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	if ev.ContactName != "" {
		msg.SetAddressHeader("To", ev.ContactEmail, ev.ContactName)
	} else {
		msg.SetHeader("To", ev.ContactEmail)
	}
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	return msg
}

func (m *Mailer) send(msg *gomail.Message, ev queue.ReservationEvent) error {
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", ev.ContactEmail, err)
	}
	m.log.Info("mail sent", zap.String("number", ev.ReservationNumber), zap.String("status", ev.Status))
	return nil
}

func data(ev queue.ReservationEvent) ticketData {
	name := ev.ContactName
	if name == "" {
		name = "there"
	}
	return ticketData{
		Name:     name,
		Number:   ev.ReservationNumber,
		Film:     ev.FilmTitle,
		Room:     ev.RoomName,
		StartsAt: ev.StartsAt,
		Seats:    strings.Join(ev.SeatLabels, ", "),
		Total:    FormatAmount(ev.AmountCents, ev.Currency),
		Reason:   ev.Reason,
		QR:       qrName,
	}
}

func render(t *template.Template, d ticketData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func qrPNG(content string) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return qr.PNG(256)
}

// FormatAmount renders cents as a decimal amount with the upper-cased
// currency code, e.g. 25.00 CAD.
func FormatAmount(cents uint64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}
