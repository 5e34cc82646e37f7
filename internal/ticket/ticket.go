// Package ticket renders printable booking tickets and signs the QR payload
// printed on them.
package ticket

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

var ErrInvalidPayload = errors.New("invalid ticket payload")

// Claims are the identifiers carried by a ticket QR code.
type Claims struct {
	BookingID int64
	EventID   int64
	UserID    int64
}

// Issuer signs and verifies ticket payloads with an HMAC-SHA256 secret.
type Issuer struct {
	secret []byte
}

// NewIssuer returns an Issuer for secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

func (i *Issuer) sign(data string) string {
	h := hmac.New(sha256.New, i.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Payload returns "booking_id|event_id|user_id|signature".
func (i *Issuer) Payload(c Claims) string {
	data := fmt.Sprintf("%d|%d|%d", c.BookingID, c.EventID, c.UserID)
	return data + "|" + i.sign(data)
}

// Verify checks the signature of payload and returns its claims.
func (i *Issuer) Verify(payload string) (Claims, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 4 {
		return Claims{}, ErrInvalidPayload
	}
	data := strings.Join(parts[:3], "|")
	if !hmac.Equal([]byte(parts[3]), []byte(i.sign(data))) {
		return Claims{}, ErrInvalidPayload
	}

	var ids [3]int64
	for n, p := range parts[:3] {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v <= 0 {
			return Claims{}, ErrInvalidPayload
		}
		ids[n] = v
	}
	return Claims{BookingID: ids[0], EventID: ids[1], UserID: ids[2]}, nil
}

// Render writes an A4 PDF ticket for b to w.
func (i *Issuer) Render(w io.Writer, b *model.BookingDetail) error {
	png, err := qrcode.Encode(i.Payload(Claims{BookingID: b.ID, EventID: b.EventID, UserID: b.UserID}), qrcode.Medium, 512)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("EnjoyCity ticket "+b.Reference, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 12, "EnjoyCity", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(120, 8, tr(b.EventTitle), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 12)
	rows := [][2]string{
		{"When", b.EventStartsAt.Format("Mon 2 Jan 2006, 15:04 MST")},
		{"Where", b.EventVenue},
		{"Name", b.UserName},
		{"Seats", strconv.Itoa(b.Quantity)},
		{"Total", b.Total()},
		{"Reference", b.Reference},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(30, 8, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(90, 8, tr(row[1]), "", 1, "L", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("qr", 140, 30, 55, 55, false, opts, 0, "")

	pdf.SetY(-30)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, "Show this ticket at the entrance. The QR code is checked on site.", "", 1, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
