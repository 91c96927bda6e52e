package dto

// Response is the envelope of every JSON answer. Exactly one of Data and
// Error is set; Meta accompanies paged lists.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo describes a failure. LegacyCode carries the code older clients
// know the same failure by.
type ErrorInfo struct {
	Code       string             `json:"code"`
	LegacyCode string             `json:"legacy_code,omitempty"`
	Message    string             `json:"message"`
	RequestID  string             `json:"request_id,omitempty"`
	Details    []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail is one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// PageMeta describes page of a listing of total items
func PageMeta(total int64, page, pageSize int) *Meta {
	m := &Meta{Total: total, Page: page, PageSize: pageSize}
	if pageSize > 0 {
		m.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return m
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Paged wraps one page of a listing
func Paged(data any, total int64, page, pageSize int) Response {
	return Response{Success: true, Data: data, Meta: PageMeta(total, page, pageSize)}
}

// Failure is the error envelope for code. Codes with a legacy alias carry it.
func Failure(code, message, requestID string) Response {
	info := &ErrorInfo{Code: code, Message: message, RequestID: requestID}
	if legacy, ok := LegacyAlias(code); ok {
		info.LegacyCode = legacy
	}
	return Response{Error: info}
}

// Invalid is the 400 envelope listing every rejected field
func Invalid(message, requestID string, details []ValidationDetail) Response {
	r := Failure(ErrCodeValidation, message, requestID)
	r.Error.Details = details
	return r
}
