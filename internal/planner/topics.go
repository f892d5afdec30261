package planner

// Topic is a canned conversation frame a session can start from.
type Topic struct {
	ID        string
	TitleEn   string
	SummaryEn string
}

// DefaultTopics is the built-in topic catalog.
var DefaultTopics = []Topic{
	{ID: "room_objects", TitleEn: "Room Objects", SummaryEn: "Finding objects in a room."},
	{ID: "food_ordering", TitleEn: "Food Ordering", SummaryEn: "Ordering food and drinks politely."},
	{ID: "campus_life", TitleEn: "Campus Life", SummaryEn: "Talking about classes and schedules."},
}

// TopicByID returns the topic with the given id, or nil.
func TopicByID(id string) *Topic {
	for i := range DefaultTopics {
		if DefaultTopics[i].ID == id {
			return &DefaultTopics[i]
		}
	}
	return nil
}
