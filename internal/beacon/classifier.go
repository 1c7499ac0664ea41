package beacon

// Classify folds one cycle's raw sightings into a single Sample per beacon
// identifier, keeping the most confident reading: the closest Level wins,
// and within the same Level the stronger RSSI wins. No input yields an
// empty map.
func Classify(sightings []Sighting) map[string]Sample {
	out := make(map[string]Sample, len(sightings))
	for _, s := range sightings {
		key := NormalizeUUID(s.UUID)
		if key == "" {
			continue
		}
		cand := Sample{
			UUID:       key,
			Level:      s.Level,
			RSSI:       s.RSSI,
			ObservedAt: s.ObservedAt,
		}
		cur, ok := out[key]
		if !ok || closer(cand, cur) {
			out[key] = cand
		}
	}
	return out
}

// closer reports whether a is a more confident reading than b.
// RSSI is in dBm, so less negative means stronger. An RSSI of 0 means
// "not reported" and never beats a real reading.
func closer(a, b Sample) bool {
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if b.RSSI == 0 {
		return a.RSSI != 0
	}
	if a.RSSI == 0 {
		return false
	}
	return a.RSSI > b.RSSI
}
