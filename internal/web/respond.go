package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jensholdgaard/auction-house/internal/account"
	"github.com/jensholdgaard/auction-house/internal/auction"
	"github.com/jensholdgaard/auction-house/internal/money"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

const genericFailure = "something went wrong, please try again"

type errorResponse struct {
	Error        string `json:"error"`
	CurrentPrice string `json:"current_price,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeDomainError maps manager errors to status codes. Business rejections
// carry their own message; anything else is reported generically.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLow *auction.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:        tooLow.Error(),
			CurrentPrice: money.Format(tooLow.CurrentPrice),
		})
	case errors.Is(err, auction.ErrValidation),
		errors.Is(err, account.ErrInvalidEmail),
		errors.Is(err, account.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auction.ErrSelfBid):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auction.ErrNotFound):
		writeError(w, http.StatusNotFound, auction.ErrNotFound.Error())
	case errors.Is(err, auction.ErrAuctionClosed), errors.Is(err, account.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	default:
		// The engine already logged its storage failures.
		if !errors.Is(err, auction.ErrStorage) {
			s.logger.ErrorContext(r.Context(), "request failed",
				slog.Any("error", err),
				slog.String("request_id", RequestID(r.Context())),
			)
		}
		writeError(w, http.StatusInternalServerError, genericFailure)
	}
}

// decode reads a JSON body into dst and validates its struct tags. It writes
// the 400 response itself and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return "invalid request"
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fieldMessage(fe)))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max", "lte":
		if isString {
			return "length should be at most " + fe.Param()
		}
		return "should be at most " + fe.Param()
	case "min", "gte":
		if isString {
			return "length should be at least " + fe.Param()
		}
		return "should be at least " + fe.Param()
	case "email":
		return "should be an email address"
	}
	return "incorrect value passed"
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
