package redis

import (
	"fmt"

	"github.com/mcoot/battleship-go/internal/model"
)

// Key prefix for all battleship data
const keyPrefix = "battleship"

// Stats hash fields
const (
	fieldWins        = "wins"
	fieldLosses      = "losses"
	fieldGamesPlayed = "games_played"
)

// userKey returns the Redis key for a User's account record
func userKey(username model.Identity) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, username)
}

// statsKey returns the Redis key for the HASH of a user's counters
func statsKey(username model.Identity) string {
	return fmt.Sprintf("%s:stats:%s", keyPrefix, username)
}

// usersIndexKey returns the Redis key for the SET of all usernames
func usersIndexKey() string {
	return fmt.Sprintf("%s:idx:users", keyPrefix)
}

// matchKey returns the Redis key for a MatchRecord
func matchKey(id model.MatchID) string {
	return fmt.Sprintf("%s:match:%s", keyPrefix, id)
}

// playerMatchesIndexKey returns the Redis key for the LIST of a player's match IDs, newest first
func playerMatchesIndexKey(username model.Identity) string {
	return fmt.Sprintf("%s:idx:matches:%s", keyPrefix, username)
}
