package middleware

import (
	"quilt/packages/communication"
)

// VClocks records, per replica, the version that replica is known to have reached
type VClocks map[communication.ReplicaID]communication.VClock

// Common is the pointwise minimum over all replicas: what every replica has seen.
// A replica without an entry for some id counts as having seen nothing from it.
func (vc VClocks) Common() communication.VClock {
	if len(vc) == 0 {
		return nil
	}
	floor := communication.NewVClock()
	for _, version := range vc {
		for id := range version {
			floor[id] = version[id]
		}
	}
	for id := range floor {
		for _, version := range vc {
			floor[id] = min(floor[id], version[id])
		}
	}
	return floor
}

// Latest is the pointwise maximum over all replicas
func (vc VClocks) Latest() communication.VClock {
	if len(vc) == 0 {
		return nil
	}
	latest := communication.NewVClock()
	for _, version := range vc {
		latest.Merge(version)
	}
	return latest
}

// Update merges version into the entry for id, creating it if needed
func (vc VClocks) Update(id communication.ReplicaID, version communication.VClock) {
	if vc[id] == nil {
		vc[id] = communication.NewVClock()
	}
	vc[id].Merge(version)
}
