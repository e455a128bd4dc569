package primitives

import "time"

// UnixTime is a count of seconds since the epoch, as used by block headers.
type UnixTime uint64

func Now() UnixTime { return UnixTime(time.Now().Unix()) }

func (t UnixTime) Time() time.Time { return time.Unix(int64(t), 0).UTC() }
