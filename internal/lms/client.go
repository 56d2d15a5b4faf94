// Package lms implements the Moodle-compatible web-service wire client
// (spec §4.6): form-encoded REST calls, multipart upload, and the
// error classification the submission orchestrator depends on.
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/pkg/config"
)

// FailureKind classifies an LMS call failure for retry/terminal routing.
type FailureKind string

const (
	FailureTransient    FailureKind = "Transient"
	FailureAuthInvalid  FailureKind = "AuthInvalid"
	FailureAuthz        FailureKind = "Authz"
	FailurePayloadReject FailureKind = "PayloadReject"
	FailureUnknown      FailureKind = "Unknown"
)

// Error wraps a classified LMS failure.
type Error struct {
	Kind    FailureKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lms: %s (%s): %s", e.Kind, e.Code, e.Message)
}

// wsErrorBody is the shape of a Moodle error response: any JSON object
// containing an exception or errorcode key signals failure despite HTTP 200.
type wsErrorBody struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func classifyErrorCode(code string) FailureKind {
	switch code {
	case "invalidtoken", "tokennotfound", "invalidtokenraw":
		return FailureAuthInvalid
	case "nopermissions", "accessexception":
		return FailureAuthz
	case "filesizeexceeded", "invalidfiletype", "maxbytesreached":
		return FailurePayloadReject
	default:
		return FailureUnknown
	}
}

// Client is the C6 LMS wire client.
type Client struct {
	httpClient *http.Client
	cfg        config.MoodleConfig
	logger     *zap.Logger
}

// NewClient constructs a Client from MoodleConfig.
func NewClient(cfg config.MoodleConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// ExchangeToken trades Moodle username/password for a web-service token via
// /login/token.php.
func (c *Client) ExchangeToken(ctx context.Context, username, password string) (string, error) {
	form := url.Values{
		"username": {username},
		"password": {password},
		"service":  {c.cfg.Service},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL(), bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", &Error{Kind: FailureUnknown, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: FailureTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	var payload struct {
		Token     string `json:"token"`
		Error     string `json:"error"`
		ErrorCode string `json:"errorcode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &Error{Kind: FailureUnknown, Message: "malformed token response"}
	}
	if payload.Token == "" {
		return "", &Error{Kind: classifyErrorCode(payload.ErrorCode), Code: payload.ErrorCode, Message: payload.Error}
	}
	return payload.Token, nil
}

// call performs a form-encoded REST call against the webservice endpoint
// and decodes the result into dest, classifying any Moodle-side error.
func (c *Client) call(ctx context.Context, token, wsfunction string, params url.Values, dest interface{}) error {
	form := url.Values{
		"wstoken":            {token},
		"wsfunction":         {wsfunction},
		"moodlewsrestformat": {"json"},
	}
	for k, v := range params {
		form[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebserviceURL(), bytes.NewBufferString(form.Encode()))
	if err != nil {
		return &Error{Kind: FailureUnknown, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: FailureTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: FailureTransient, Message: err.Error()}
	}

	var wsErr wsErrorBody
	if err := json.Unmarshal(raw, &wsErr); err == nil && (wsErr.Exception != "" || wsErr.ErrorCode != "") {
		return &Error{Kind: classifyErrorCode(wsErr.ErrorCode), Code: wsErr.ErrorCode, Message: wsErr.Message}
	}

	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return &Error{Kind: FailureUnknown, Message: "malformed webservice response"}
		}
	}
	return nil
}

// SiteInfoResult resolves (user_id, username) from a token.
type SiteInfoResult struct {
	UserID   int    `json:"userid"`
	Username string `json:"username"`
}

// SiteInfo calls core_webservice_get_site_info.
func (c *Client) SiteInfo(ctx context.Context, token string) (*SiteInfoResult, error) {
	var result SiteInfoResult
	if err := c.call(ctx, token, "core_webservice_get_site_info", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MoodleUser is a subset of the fields returned by core_user_get_users_by_field.
type MoodleUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
}

// UserByField calls core_user_get_users_by_field and returns the first match.
func (c *Client) UserByField(ctx context.Context, field, value string) (*MoodleUser, error) {
	if c.cfg.AdminToken == "" {
		return nil, &Error{Kind: FailureAuthInvalid, Message: "no admin token configured"}
	}
	params := url.Values{
		"field":        {field},
		"values[0]":    {value},
	}
	var users []MoodleUser
	if err := c.call(ctx, c.cfg.AdminToken, "core_user_get_users_by_field", params, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// UploadFile uploads bytes to the user's private draft file area and
// returns the resulting draft item id.
func (c *Client) UploadFile(ctx context.Context, token string, data []byte, filename string) (int, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("token", token); err != nil {
		return 0, &Error{Kind: FailureUnknown, Message: err.Error()}
	}
	if err := writer.WriteField("filearea", "draft"); err != nil {
		return 0, &Error{Kind: FailureUnknown, Message: err.Error()}
	}

	part, err := writer.CreateFormFile("file_1", filename)
	if err != nil {
		return 0, &Error{Kind: FailureUnknown, Message: err.Error()}
	}
	if _, err := part.Write(data); err != nil {
		return 0, &Error{Kind: FailureUnknown, Message: err.Error()}
	}
	if err := writer.Close(); err != nil {
		return 0, &Error{Kind: FailureUnknown, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL(), body)
	if err != nil {
		return 0, &Error{Kind: FailureUnknown, Message: err.Error()}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Kind: FailureTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &Error{Kind: FailureTransient, Message: err.Error()}
	}

	var wsErr wsErrorBody
	if err := json.Unmarshal(raw, &wsErr); err == nil && (wsErr.Exception != "" || wsErr.ErrorCode != "") {
		return 0, &Error{Kind: classifyErrorCode(wsErr.ErrorCode), Code: wsErr.ErrorCode, Message: wsErr.Message}
	}

	var files []struct {
		ItemID int `json:"itemid"`
	}
	if err := json.Unmarshal(raw, &files); err != nil || len(files) == 0 {
		return 0, &Error{Kind: FailurePayloadReject, Message: "upload rejected or malformed response"}
	}

	return files[0].ItemID, nil
}

// SaveSubmission attaches a previously uploaded draft item to an assignment.
func (c *Client) SaveSubmission(ctx context.Context, token string, assignmentID, draftItemID int) error {
	params := url.Values{
		"assignmentid": {strconv.Itoa(assignmentID)},
		"plugindata[files_filemanager]": {strconv.Itoa(draftItemID)},
	}
	return c.call(ctx, token, "mod_assign_save_submission", params, nil)
}

// SubmitResult carries the identifier of a finalised submission.
type SubmitResult struct {
	SubmissionID int `json:"submissionid"`
}

// SubmitForGrading finalises a submission, returning its submission id.
func (c *Client) SubmitForGrading(ctx context.Context, token string, assignmentID int) (int, error) {
	params := url.Values{
		"assignmentid": {strconv.Itoa(assignmentID)},
	}
	var raw json.RawMessage
	if err := c.call(ctx, token, "mod_assign_submit_for_grading", params, &raw); err != nil {
		return 0, err
	}

	var result SubmitResult
	if err := json.Unmarshal(raw, &result); err == nil && result.SubmissionID > 0 {
		return result.SubmissionID, nil
	}
	// mod_assign_submit_for_grading returns null on bare success in stock
	// Moodle; when the webservice omits a submission id, the assignment id
	// is returned in its place.
	return assignmentID, nil
}
