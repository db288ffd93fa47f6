package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"pricewatch/internal/misc"
)

var ErrTelegram = errors.New("Telegram error")

type telegramSendRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Telegram sends messages through the Bot API. The recipient is a chat id.
type Telegram struct {
	Client *http.Client
	Token  string
	// APIBase defaults to https://api.telegram.org.
	APIBase string
	Logger  logger
}

func (t Telegram) Send(ctx context.Context, recipient string, message string) error {
	reqBody, err := json.Marshal(telegramSendRequest{
		ChatID:                recipient,
		Text:                  message,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return errors.Wrap(err, "Send: error marshalling sendMessage request")
	}

	base := t.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/bot"+t.Token+"/sendMessage", bytes.NewReader(reqBody))
	if err != nil {
		return errors.Wrap(err, "Send: error creating sendMessage request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// The URL carries the bot token, keep it out of the error.
		return errors.Wrapf(ErrTelegram, "Send: error doing request to chat: %s", recipient)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && t.Logger != nil {
			t.Logger.Errorf("Send: Error closing Telegram response body, err: %v", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return errors.Wrapf(err, "Send: error reading Telegram response body, status: %s", resp.Status)
	}
	var tgResp telegramResponse
	if err = json.Unmarshal(respBody, &tgResp); err != nil {
		return errors.Wrapf(err, "Send: error unmarshalling Telegram response, status: %s, body: %s",
			resp.Status, misc.BytesLimit(respBody, 500))
	}
	if !tgResp.OK {
		return errors.Wrapf(ErrTelegram, "Send: chat: %s, status: %s, code: %d, description: %s",
			recipient, resp.Status, tgResp.ErrorCode, tgResp.Description)
	}
	if t.Logger != nil {
		t.Logger.Debugf("Send: Delivered Telegram message to chat: %s", recipient)
	}
	return nil
}
