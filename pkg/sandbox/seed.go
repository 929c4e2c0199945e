package sandbox

import "github.com/dukex/botportal/pkg/config"

// Load adds the users and bots of seed to the store.
func (s *Store) Load(seed config.Seed) {
	for _, b := range seed.Bots {
		s.AddBot(b.Bot())
	}

	for _, u := range seed.Users {
		s.AddUser(u.Token, u.User())
	}
}
