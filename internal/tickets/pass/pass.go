package pass

import (
	"bytes"
	"fmt"
	"strings"

	"dgc-transports/internal/models"

	"github.com/phpdave11/gofpdf"
)

// Details is everything printed on a boarding pass.
type Details struct {
	Booking models.Booking
	Trip    models.TemplateDetails
}

// RenderBoardingPass lays out a single-passenger A5 boarding pass with the
// QR image in the right column.
func RenderBoardingPass(d Details, qrPNG []byte) ([]byte, error) {
	b := d.Booking
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("Boarding Pass "+b.PNR, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOARDING PASS")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, fmt.Sprintf("%s -> %s", safe(d.Trip.PickupCity), safe(d.Trip.DropoffCity)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		fmt.Sprintf("PNR        : %s", b.PNR),
		fmt.Sprintf("Passenger  : %s", safe(b.PassengerName)),
		fmt.Sprintf("Phone      : %s", safe(b.PassengerPhone)),
		fmt.Sprintf("Date       : %s", b.TripDate),
		fmt.Sprintf("Departure  : %s", safe(d.Trip.DepartureTime)),
		fmt.Sprintf("Seat       : %d", b.SeatNumber),
		fmt.Sprintf("Vehicle    : %s (%s)", safe(d.Trip.PlateNumber), safe(d.Trip.VehicleType)),
		fmt.Sprintf("Fare       : %.0f", b.Price),
		fmt.Sprintf("Status     : %s", strings.ToUpper(string(b.Status))),
	}
	top := pdf.GetY()
	for _, s := range lines {
		pdf.Cell(80, 7, s)
		pdf.Ln(7)
	}

	if len(qrPNG) > 0 {
		name := "qr-" + b.PNR
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(qrPNG))
		pdf.ImageOptions(name, 92, top, 48, 48, false, opts, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Valid for one passenger and one seat. Show this code to the conductor before departure.", "", "", false)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render boarding pass %s: %w", b.PNR, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write boarding pass %s: %w", b.PNR, err)
	}
	return buf.Bytes(), nil
}

func Filename(pnr string) string {
	return fmt.Sprintf("BOARDING_PASS_%s.pdf", pnr)
}

func safe(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
