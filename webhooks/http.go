package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxNotificationBody = 1 << 20

// GraphHandler serves a Microsoft Graph notification URL. Graph validates the
// URL by posting a validationToken query parameter that must be echoed back
// as text/plain.
func GraphHandler(processor *Processor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("validationToken"); token != "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, token)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBody))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		notifications, err := ParseGraphNotifications(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		results := make([]Result, 0, len(notifications))
		status := http.StatusAccepted
		for _, notification := range notifications {
			result, processErr := processor.Process(r.Context(), notification)
			if processErr != nil {
				status = failureStatus(result, processErr)
				if status == http.StatusUnauthorized {
					// A forged item poisons the batch; Graph never mixes tokens.
					writeResults(w, status, nil)
					return
				}
				continue
			}
			results = append(results, result)
		}
		writeResults(w, status, results)
	})
}

// GoogleChannelHandler serves a Google Calendar watch channel address.
func GoogleChannelHandler(processor *Processor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxNotificationBody))
		notification, err := ParseGoogleChannelNotification(r.Header)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, err := processor.Process(r.Context(), notification)
		if err != nil {
			writeResults(w, failureStatus(result, err), nil)
			return
		}
		writeResults(w, result.StatusCode, []Result{result})
	})
}

// failureStatus keeps rejected tokens at 401 and asks the provider to
// redeliver anything else.
func failureStatus(result Result, err error) int {
	if result.StatusCode == http.StatusUnauthorized {
		return http.StatusUnauthorized
	}
	if errors.Is(err, errProcessorMisconfigured) {
		return http.StatusInternalServerError
	}
	return http.StatusServiceUnavailable
}

func writeResults(w http.ResponseWriter, status int, results []Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if results == nil {
		results = []Result{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}
