package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ratio-band-alerts/internal/prefs"
)

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken     string
	chatID       string
	baseURL      string
	dashboardURL string
	client       *http.Client
	logger       zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL, dashboardURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken:     botToken,
		chatID:       chatID,
		baseURL:      strings.TrimRight(baseURL, "/"),
		dashboardURL: dashboardURL,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if n.botToken == "" || n.chatID == "" {
		return &DeliveryError{Channel: "telegram", Err: ErrNotConfigured}
	}

	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       renderTelegramMessage(note, n.dashboardURL),
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: "telegram", Err: fmt.Errorf("marshal payload: %w", err)}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Channel: "telegram", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: "telegram", Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Channel: "telegram", Err: fmt.Errorf("响应码异常: %d", resp.StatusCode)}
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return &DeliveryError{Channel: "telegram", Err: fmt.Errorf("返回 ok=false: %s", result.Description)}
	}

	n.logger.Info().Time("at", note.At).
		Str("state", string(note.NewState)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderTelegramMessage(note Notification, dashboardURL string) string {
	emoji := "🟩"
	if note.NewState == prefs.StateOutOfRange {
		if note.Ratio.GreaterThan(note.MaxRange) {
			emoji = "🟥"
		} else {
			emoji = "🟨"
		}
	}

	builder := strings.Builder{}
	builder.WriteString(emoji + "\n")
	builder.WriteString(fmt.Sprintf("*%s*: %s - %s\n",
		strings.ToUpper(string(note.NewState)),
		note.MinRange.StringFixed(6),
		note.MaxRange.StringFixed(6)))
	builder.WriteString(fmt.Sprintf("Current ratio: %s\n", note.Ratio.StringFixed(6)))
	if dashboardURL != "" {
		builder.WriteString(fmt.Sprintf("[View Details](%s)\n", dashboardURL))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
