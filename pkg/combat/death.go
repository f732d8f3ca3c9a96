package combat

// Defaults for the death/respawn sequence (§3, §4.3 steps 4-5, §4.7).
const (
	DefaultDeathAnimTicks      = 10
	DefaultEntityRespawnSeconds = 30
)

// EntityDeathTick returns the tick at which a just-died entity should
// transition from dying to dead.
func EntityDeathTick(currentTick uint64, deathAnimTicks int) uint64 {
	if deathAnimTicks <= 0 {
		deathAnimTicks = DefaultDeathAnimTicks
	}
	return currentTick + uint64(deathAnimTicks)
}
