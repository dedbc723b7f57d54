package repositories

// Store bundles the repositories behind the single storage port the realtime core
// consumes.
type Store struct {
	MessageRepository
	PresenceRepository
	UserRepository
}

// NewStore composes a Store.
func NewStore(messages MessageRepository, presence PresenceRepository, users UserRepository) *Store {
	return &Store{
		MessageRepository:  messages,
		PresenceRepository: presence,
		UserRepository:     users,
	}
}
