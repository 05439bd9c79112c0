package remote

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/bohemiyan/ugibdd"
)

// errorBody covers the error shapes of the table API, both auth API versions
// and the user-management function.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	Message          string          `json:"message"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
}

func decodeError(resp *http.Response) *ugibdd.RemoteError {
	re := &ugibdd.RemoteError{Status: resp.StatusCode}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(payload) == 0 {
		return re
	}

	var body errorBody
	if err := json.Unmarshal(payload, &body); err != nil {
		re.Message = strings.TrimSpace(string(payload))
		return re
	}
	re.Code = strings.Trim(string(body.Code), `"`)
	if body.ErrorCode != "" {
		re.Code = body.ErrorCode
	}
	re.Details = body.Details
	re.Hint = body.Hint
	for _, m := range []string{body.Message, body.ErrorDescription, body.Msg, body.Error} {
		if m != "" {
			re.Message = m
			break
		}
	}
	if re.Code == "" && body.Error != "" && body.Error != re.Message {
		re.Code = body.Error
	}
	return re
}
