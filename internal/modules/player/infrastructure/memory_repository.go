package infrastructure

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

// MemoryRepository is an in-memory implementation of PlayerRepository.
// Players are created lazily and live for the process lifetime.
type MemoryRepository struct {
	mu      sync.RWMutex
	players map[snowflake.ID]*domain.Player
}

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		players: make(map[snowflake.ID]*domain.Player),
	}
}

// Get returns the Player for the given guild, or nil if none exists.
func (r *MemoryRepository) Get(guildID snowflake.ID) *domain.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.players[guildID]
}

// GetOrCreate returns the Player for the given guild, creating it if needed.
func (r *MemoryRepository) GetOrCreate(guildID snowflake.ID) *domain.Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if player, ok := r.players[guildID]; ok {
		return player
	}
	player := domain.NewPlayer(guildID)
	r.players[guildID] = player
	return player
}

// Delete removes the Player for the given guild.
func (r *MemoryRepository) Delete(guildID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.players, guildID)
}

// All returns a snapshot of every known Player.
func (r *MemoryRepository) All() []*domain.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	players := make([]*domain.Player, 0, len(r.players))
	for _, player := range r.players {
		players = append(players, player)
	}
	return players
}

// Count returns the number of players (for testing/monitoring).
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.players)
}

// Ensure MemoryRepository implements PlayerRepository.
var _ domain.PlayerRepository = (*MemoryRepository)(nil)
