// Package notify delivers booking notices over e-mail and Telegram.
package notify

import (
	"fmt"
	"strings"

	"hairstudio/internal/models"
)

// Message is a rendered notice.
type Message struct {
	Subject string
	Body    string
}

func RenderConfirmation(a *models.Appointment) Message {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("Hello %s,\n\n", a.CustomerName))
	body.WriteString("your appointment is confirmed.\n\n")
	writeDetails(&body, a)
	body.WriteString("\nIf you cannot make it, please cancel in advance.\n")

	return Message{
		Subject: fmt.Sprintf("Appointment confirmed: %s %s", a.Date, a.Time),
		Body:    body.String(),
	}
}

func RenderAdminNotice(a *models.Appointment) Message {
	var body strings.Builder
	body.WriteString("📅 New booking\n\n")
	writeDetails(&body, a)
	writeContacts(&body, a)

	return Message{
		Subject: fmt.Sprintf("New booking: %s %s, %s", a.Date, a.Time, a.CustomerName),
		Body:    body.String(),
	}
}

// RenderCancellation renders the customer notice or, with isCustomer false, the admin one.
func RenderCancellation(a *models.Appointment, isCustomer bool) Message {
	var body strings.Builder
	if isCustomer {
		body.WriteString(fmt.Sprintf("Hello %s,\n\n", a.CustomerName))
		body.WriteString("your appointment has been cancelled.\n\n")
		writeDetails(&body, a)
		return Message{
			Subject: fmt.Sprintf("Appointment cancelled: %s %s", a.Date, a.Time),
			Body:    body.String(),
		}
	}

	body.WriteString("❌ Booking cancelled by the customer\n\n")
	writeDetails(&body, a)
	writeContacts(&body, a)
	return Message{
		Subject: fmt.Sprintf("Booking cancelled: %s %s, %s", a.Date, a.Time, a.CustomerName),
		Body:    body.String(),
	}
}

func RenderChangeNotice(a *models.Appointment, oldDate, oldTime string) Message {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("Hello %s,\n\n", a.CustomerName))
	body.WriteString(fmt.Sprintf("your appointment on %s at %s has been moved.\n\n", oldDate, oldTime))
	body.WriteString("New time:\n")
	writeDetails(&body, a)

	return Message{
		Subject: fmt.Sprintf("Appointment moved to %s %s", a.Date, a.Time),
		Body:    body.String(),
	}
}

func writeDetails(b *strings.Builder, a *models.Appointment) {
	b.WriteString(fmt.Sprintf("Date: %s\n", a.Date))
	b.WriteString(fmt.Sprintf("Time: %s\n", a.Time))
	if name := models.StringValue(a.ServiceName); name != "" {
		b.WriteString(fmt.Sprintf("Service: %s\n", name))
	}
	if a.Duration > 0 {
		b.WriteString(fmt.Sprintf("Duration: %d min\n", a.Duration))
	}
}

func writeContacts(b *strings.Builder, a *models.Appointment) {
	b.WriteString(fmt.Sprintf("Customer: %s\n", a.CustomerName))
	if email := models.StringValue(a.CustomerEmail); email != "" {
		b.WriteString(fmt.Sprintf("E-mail: %s\n", email))
	}
	if phone := models.StringValue(a.CustomerPhone); phone != "" {
		b.WriteString(fmt.Sprintf("Phone: %s\n", phone))
	}
}
