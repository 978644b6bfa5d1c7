// Package telephony is the outbound-call REST client: it asks the
// telephony provider to place a call and answers with the call SID
// Twilio will reference in every subsequent webhook/media-stream event.
package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
)

// TwilioClient places outbound calls via the Twilio REST API.
type TwilioClient struct {
	httpClient  *http.Client
	apiBaseURL  string
	accountSID  string
	authToken   string
	fromNumber  string
	externalURL string
}

func NewTwilioClient(accountSID, authToken, fromNumber, externalURL string) *TwilioClient {
	return &TwilioClient{
		httpClient:  http.DefaultClient,
		apiBaseURL:  "https://api.twilio.com",
		accountSID:  accountSID,
		authToken:   authToken,
		fromNumber:  fromNumber,
		externalURL: externalURL,
	}
}

func (c *TwilioClient) Name() string { return "twilio" }

// Call initiates an outbound call to "to". Twilio will call back to
// /twilio/voice/outbound (with message percent-encoded onto the query
// string when non-empty) once the call connects. Returns the call SID.
func (c *TwilioClient) Call(ctx context.Context, to, message string) (string, error) {
	apiURL := c.apiBaseURL + "/2010-04-01/Accounts/" + c.accountSID + "/Calls.json"

	webhookURL := strings.TrimRight(c.externalURL, "/") + "/twilio/voice/outbound"
	if message != "" {
		webhookURL += "?message=" + url.QueryEscape(message)
	}

	form := url.Values{
		"To":   {to},
		"From": {c.fromNumber},
		"Url":  {webhookURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", clienterr.Request(c.Name(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", clienterr.Request(c.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body any
		json.NewDecoder(resp.Body).Decode(&body)
		return "", clienterr.API(c.Name(), resp.StatusCode, body)
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", clienterr.Parse(c.Name(), err)
	}
	return result.SID, nil
}
