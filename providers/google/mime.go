package google

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"

	"github.com/goliatone/go-crm-sync/core"
)

// buildMIMEMessage renders the draft as a base64url RFC 5322 message as the
// Gmail send endpoint expects.
func buildMIMEMessage(draft core.EmailDraft) (string, error) {
	var buf bytes.Buffer
	to, err := formatAddresses(draft.To)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	if len(draft.Cc) > 0 {
		cc, err := formatAddresses(draft.Cc)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&buf, "Cc: %s\r\n", cc)
	}
	if len(draft.Bcc) > 0 {
		bcc, err := formatAddresses(draft.Bcc)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&buf, "Bcc: %s\r\n", bcc)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", draft.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	buf.WriteString(draft.Body)
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

func formatAddresses(addresses []core.EmailAddress) (string, error) {
	out := make([]string, 0, len(addresses))
	for _, address := range addresses {
		trimmed := strings.TrimSpace(address.Address)
		if _, err := mail.ParseAddress(trimmed); err != nil {
			return "", fmt.Errorf("google: invalid address %q: %w", address.Address, err)
		}
		formatted := (&mail.Address{Name: address.Name, Address: trimmed}).String()
		out = append(out, formatted)
	}
	return strings.Join(out, ", "), nil
}
