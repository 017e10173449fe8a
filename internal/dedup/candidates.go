package dedup

import "math"

// bandFor is the inclusive normalized-length band around one probe length.
func bandFor(length int, ratio float64) LengthBand {
	if length <= 0 {
		return LengthBand{}
	}
	return LengthBand{
		Min: int(math.Floor(float64(length) * (1 - ratio))),
		Max: int(math.Ceil(float64(length) * (1 + ratio))),
	}
}

// groupBand is the union band covering every prepared record of one owner,
// sized for the single candidate query.
func groupBand(records []*preparedRecord, ratio float64) LengthBand {
	var band LengthBand
	for i, prep := range records {
		rb := bandFor(prep.length, ratio)
		if i == 0 {
			band = rb
			continue
		}
		if rb.Min < band.Min {
			band.Min = rb.Min
		}
		if rb.Max > band.Max {
			band.Max = rb.Max
		}
	}
	return band
}

// withinBand reports whether a candidate length sits inside the probe's band.
func withinBand(probeLength, candidateLength int, ratio float64) bool {
	band := bandFor(probeLength, ratio)
	return candidateLength >= band.Min && candidateLength <= band.Max
}
