package main

import (
	"bytes"
	"flag"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	log "github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/pkg/hand"
)

// supportURL is embedded as a QR code on the session report, matching
// the vendor-support-page convention report subcommands in this style
// typically carry.
const supportURL = "https://support.wuji-robotics.example/hand"

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	df := deviceFlags(fs)
	out := fs.String("out", "handctl-report.pdf", "output PDF path")
	fs.Parse(args)

	h := openHand(df)
	defer h.Close()

	if _, err := h.HandRead(hand.Handedness, defaultTimeout); err != nil {
		log.Fatalf("report: device not responding: %v", err)
	}

	fwRaw, err := h.HandRead(hand.HandFirmwareVersion, defaultTimeout)
	if err != nil {
		log.Fatalf("report: read firmware version: %v", err)
	}
	fw := handdrv.FirmwareVersionFromU32(handdrv.As[uint32](fwRaw))

	if err := savePDFReport(*out, fw); err != nil {
		log.Fatalf("report: %v", err)
	}
	fmt.Printf("wrote %s\n", *out)
}

func savePDFReport(path string, fw handdrv.FirmwareVersion) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Hand Session Report", false)
	pdf.SetAuthor("handctl", false)
	pdf.SetCreator("handctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Hand Session Report")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Device")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(50, 6, "Firmware version", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, fw.String(), "", 1, "L", false, 0, "")
	pdf.CellFormat(50, 6, "Generated", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, time.Now().Format(time.RFC3339), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	png, err := qrcode.Encode(supportURL, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode support qr code: %w", err)
	}
	pdf.RegisterImageOptionsReader("support-qr", gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pdf.ImageOptions("support-qr", 15, pdf.GetY(), 30, 30, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.Ln(34)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(path)
}
