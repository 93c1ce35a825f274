package snapshot

import "net/url"

// Descriptor names a snapshot document and the key its payload sits under.
type Descriptor struct {
	ResourceType string
	Path         string
	WrapperKey   string
}

// Categories describes the category listing.
func Categories() Descriptor {
	return Descriptor{ResourceType: "categories", Path: "categories.json", WrapperKey: "categories"}
}

// Games describes the game listing.
func Games() Descriptor {
	return Descriptor{ResourceType: "games", Path: "games.json", WrapperKey: "games"}
}

// Game describes a single game.
func Game(id string) Descriptor {
	return Descriptor{ResourceType: "game", Path: "games/" + url.PathEscape(id) + ".json", WrapperKey: "game"}
}
