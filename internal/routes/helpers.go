package routes

import "time"

const timeFormat = time.RFC3339

func timeNow() time.Time { return time.Now() }
