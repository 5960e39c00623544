package notify

import "strings"

// DefaultTemplate is used when a stage carries no notification template.
const DefaultTemplate = "Your vehicle {vehicle_reg} has moved to: {stage_name}"

// Placeholder text substituted when the corresponding field is empty, so a
// delivered message never contains a literal unresolved token.
const (
	fallbackCustomerName = "Valued Customer"
	fallbackVehicle      = "your vehicle"
	fallbackStageName    = "the next stage"
)

// MessageData holds the field values available to template tokens.
type MessageData struct {
	CustomerName string
	VehicleReg   string
	VehicleMake  string
	VehicleModel string
	StageName    string
}

// RenderMessage substitutes the template's tokens with the case's field
// values, falling back to placeholder text for empty fields. A nil or blank
// template renders DefaultTemplate.
func RenderMessage(template *string, data MessageData) string {
	tpl := DefaultTemplate
	if template != nil && strings.TrimSpace(*template) != "" {
		tpl = *template
	}

	replacer := strings.NewReplacer(
		"{customer_name}", orFallback(data.CustomerName, fallbackCustomerName),
		"{vehicle_reg}", orFallback(data.VehicleReg, fallbackVehicle),
		"{vehicle_make}", orFallback(data.VehicleMake, fallbackVehicle),
		"{vehicle_model}", orFallback(data.VehicleModel, fallbackVehicle),
		"{stage_name}", orFallback(data.StageName, fallbackStageName),
	)

	return replacer.Replace(tpl)
}

func orFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
