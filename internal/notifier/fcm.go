package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"pricewatch/internal/misc"
)

var ErrFCM = errors.New("FCM error")

type FCMSendResponse struct {
	Success int             `json:"success"`
	Failure int             `json:"failure"`
	Results []FCMSendResult `json:"results"`
}

type FCMSendResult struct {
	Error *string `json:"error"`
}

type FCMSendRequest struct {
	Notification    FCMNotification `json:"notification"`
	RegistrationIDs []string        `json:"registration_ids"`
}

type FCMNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

// FCM pushes to a device. The recipient is an FCM registration token.
type FCM struct {
	Client *http.Client
	Key    string
	// Endpoint defaults to https://fcm.googleapis.com/fcm/send.
	Endpoint string
	Logger   logger
}

func (f FCM) Send(ctx context.Context, recipient string, message string) error {
	fcmReq := FCMSendRequest{
		Notification: FCMNotification{
			Title: "The price of an item has changed!",
			Body:  stripMarkdown(message),
			Sound: "default",
		},
		RegistrationIDs: []string{recipient},
	}
	resp, err := f.send(ctx, fcmReq)
	if err != nil {
		return err
	}
	if resp.Failure > 0 {
		var reason string
		if len(resp.Results) > 0 && resp.Results[0].Error != nil {
			reason = *resp.Results[0].Error
		}
		return errors.Wrapf(ErrFCM, "Send: delivery failed, success: %d, failure: %d, reason: %s",
			resp.Success, resp.Failure, reason)
	}
	return nil
}

func (f FCM) send(ctx context.Context, fcmReqBody FCMSendRequest) (FCMSendResponse, error) {
	reqBody, err := json.Marshal(fcmReqBody)
	if err != nil {
		return FCMSendResponse{}, errors.Wrapf(err, "FCMSendNotification: FCMSendRequest JSON marshalling error, req: %+v", fcmReqBody)
	}

	endpoint := f.Endpoint
	if endpoint == "" {
		endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return FCMSendResponse{}, errors.Wrapf(err, "FCMSendNotification: error creating HTTP request from body: %s", reqBody)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+f.Key)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return FCMSendResponse{}, errors.Wrapf(ErrFCM, "FCMSendNotification: error doing request, err: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && f.Logger != nil {
			f.Logger.Errorf("FCMSendNotification: Error closing response body, err: %v", err)
		}
	}()

	fcmSendResp := FCMSendResponse{}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 300000))
	if err != nil {
		return fcmSendResp, errors.Wrapf(err, "FCMSendNotification: error reading FCMSendAPI response body, status: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return fcmSendResp, errors.Wrapf(ErrFCM, "FCMSendNotification: status: %s, body: %s",
			resp.Status, misc.BytesLimit(respBody, 500))
	}
	err = json.Unmarshal(respBody, &fcmSendResp)
	return fcmSendResp, errors.Wrapf(err,
		"FCMSendNotification: error unmarshalling FCMSendAPI response body: %s", misc.BytesLimit(respBody, 500))
}

var markdownStripper = strings.NewReplacer("\\_", "_", "\\*", "*", "\\`", "`", "\\[", "[", "*", "")

// stripMarkdown turns the Markdown message into plain push notification text.
func stripMarkdown(s string) string {
	return markdownStripper.Replace(s)
}
