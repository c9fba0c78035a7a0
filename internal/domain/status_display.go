package domain

// StatusDisplay is the badge shown for a trip's status.
type StatusDisplay struct {
	Label           string
	TextColor       string
	BackgroundColor string
}

var (
	statusDisplayUpcoming = StatusDisplay{Label: "Upcoming", TextColor: "text-blue-800", BackgroundColor: "bg-blue-100"}

	statusDisplays = map[TripStatus]StatusDisplay{
		TripStatusInProgress: {Label: "Active", TextColor: "text-green-800", BackgroundColor: "bg-green-100"},
		TripStatusCompleted:  {Label: "Completed", TextColor: "text-gray-800", BackgroundColor: "bg-gray-100"},
	}
)

// TripStatusConfig returns the badge for status. When isUpcoming is true the
// Upcoming badge wins regardless of status.
func TripStatusConfig(status TripStatus, isUpcoming bool) StatusDisplay {
	if isUpcoming {
		return statusDisplayUpcoming
	}
	return statusDisplays[status]
}
