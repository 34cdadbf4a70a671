package codec

import "time"

// FIT timestamps count seconds since 1989-12-31 00:00:00 UTC.
var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

// FITTime converts t to a FIT timestamp. Times before the epoch clamp to 0.
func FITTime(t time.Time) uint32 {
	d := t.Unix() - fitEpoch.Unix()
	if d < 0 {
		return 0
	}
	return uint32(d)
}

// TimeFromFIT converts a FIT timestamp to UTC.
func TimeFromFIT(ts uint32) time.Time {
	return fitEpoch.Add(time.Duration(ts) * time.Second)
}
