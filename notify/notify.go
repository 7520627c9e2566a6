// Package notify delivers plain-text operator notifications. Delivery is best
// effort, failures are logged and never propagated.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/exp/slog"
)

type Notifier interface {
	Info(msg string)
	Warn(msg string)
}

// LogNotifier only writes notifications to the log. It is the non-production
// fallback.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Info(msg string) {
	n.logger.Info(msg)
}

func (n *LogNotifier) Warn(msg string) {
	n.logger.Warn(msg)
}

// Webhook posts notifications to two webhook endpoints, one for info messages
// and one for warnings. Log output happens regardless.
type Webhook struct {
	infoURL  string
	errorURL string
	client   *http.Client
	logger   *slog.Logger
}

func NewWebhook(infoURL, errorURL string, logger *slog.Logger) *Webhook {
	return &Webhook{
		infoURL:  infoURL,
		errorURL: errorURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

func (w *Webhook) Info(msg string) {
	w.logger.Info(msg)
	w.send(w.infoURL, msg)
}

func (w *Webhook) Warn(msg string) {
	w.logger.Warn(msg)
	w.send(w.errorURL, msg)
}

func (w *Webhook) send(url, msg string) {
	body, err := json.Marshal(map[string]string{"content": msg})
	if err != nil {
		w.logger.Error("unable to marshal notification", err)
		return
	}
	resp, err := w.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logger.Error("unable to deliver notification", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		w.logger.Warn("notification was not accepted", slog.Int("status", resp.StatusCode))
	}
}
