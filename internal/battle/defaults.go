package battle

// DefaultRewards is the catalog attached to every freshly created room.
func DefaultRewards() []Reward {
	return []Reward{
		{ID: "dinner", Name: "Pick Dinner", Cost: 3, Icon: "🍽️", Description: "Choose what we eat tonight"},
		{ID: "massage", Name: "Get a Massage", Cost: 5, Icon: "💆", Description: "15-minute shoulder massage"},
		{ID: "netflix", Name: "Netflix Pick", Cost: 2, Icon: "📺", Description: "Choose the next show/movie"},
		{ID: "coffee", Name: "Free Coffee", Cost: 1, Icon: "☕", Description: "Other person buys your coffee"},
		{ID: "chores", Name: "Skip Chores", Cost: 4, Icon: "🧹", Description: "Skip your turn doing dishes"},
		{ID: "music", Name: "Music Control", Cost: 2, Icon: "🎵", Description: "Control playlist for the day"},
	}
}
