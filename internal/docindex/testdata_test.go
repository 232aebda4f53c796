package docindex

func sampleEntities() []Entity {
	return []Entity{
		{
			ID:          "Game.Core.Ball",
			Name:        "Ball",
			Description: "physics ball",
			Members: []Member{
				{Kind: KindMethod, Name: "Launch", Description: "fires the ball upward"},
				{Kind: KindMethod, Name: "Reset", Description: "returns the ball to the paddle"},
				{Kind: KindProperty, Name: "Speed", Description: "current velocity magnitude"},
			},
		},
		{
			ID:          "Game.Core.Paddle",
			Name:        "Paddle",
			Description: "player paddle",
			Members: []Member{
				{Kind: KindMethod, Name: "Reset", Description: "centres the paddle"},
			},
		},
	}
}
