package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// htmlBody is the alert mail body. html/template escapes every interpolated
// value, so a product name containing markup can't inject HTML into the mail.
var htmlBody = template.Must(template.New("alert").Parse(`<html>
	<body>
		<h2>Price Alert!</h2>
		<p>The price of <strong>{{.ProductName}}</strong> has dropped below your target price!</p>

		<div style="margin: 20px 0;">
			<p><strong>Current Price:</strong> {{printf "%.2f" .CurrentPrice}}</p>
			<p><strong>Your Target Price:</strong> {{printf "%.2f" .TargetPrice}}</p>
		</div>

		{{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.ProductName}}" style="max-width: 300px; margin: 20px 0;">{{end}}

		<p>
			<a href="{{.ProductURL}}" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">View Product</a>
		</p>

		<p>Happy Shopping!</p>
		<p>PricePulse Team</p>
	</body>
</html>`))

// SMTPConfig is the mail transport configuration, read from env in main.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends alert mail over a plain SMTP connection.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates a notifier for the given SMTP server.
//
// No connection is made here — gomail dials per message. A misconfigured
// host therefore surfaces on the first Send, which the tracker logs and
// retries on a later tick, rather than preventing startup.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

// Send renders and delivers one alert mail.
//
// WHY THE GOROUTINE?
// gomail's DialAndSend has no context support — it blocks until the SMTP
// conversation finishes or the TCP stack gives up. Running it in a goroutine
// and selecting on ctx.Done() gives the caller the bounded-timeout behavior
// it expects. On timeout the goroutine finishes in the background and its
// result is discarded; the buffered channel keeps it from leaking.
func (n *SMTPNotifier) Send(ctx context.Context, alert Alert) error {
	msg, err := n.build(alert)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- n.dialer.DialAndSend(msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("notifier: sending alert to %s: %w", alert.Recipient, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("notifier: sending alert to %s: %w", alert.Recipient, err)
		}
	}

	n.logger.Info("price alert email sent",
		slog.String("recipient", alert.Recipient),
		slog.String("product", alert.ProductName),
	)
	return nil
}

// build renders the message. Split from Send so tests can check the
// rendered output without an SMTP server.
func (n *SMTPNotifier) build(alert Alert) (*gomail.Message, error) {
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, alert); err != nil {
		return nil, fmt.Errorf("notifier: rendering alert body: %w", err)
	}

	plain := fmt.Sprintf(
		"Price Alert!\n\n"+
			"The price of %s has dropped below your target price!\n\n"+
			"Current Price: %.2f\n"+
			"Your Target Price: %.2f\n\n"+
			"View the product here: %s\n\n"+
			"Happy Shopping!\nPricePulse Team\n",
		alert.ProductName, alert.CurrentPrice, alert.TargetPrice, alert.ProductURL,
	)

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", alert.Recipient)
	msg.SetHeader("Subject", fmt.Sprintf("Price Alert: %s is now below your target price!", alert.ProductName))
	msg.SetBody("text/plain", plain)
	msg.AddAlternative("text/html", html.String())

	return msg, nil
}
