package game

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

func GenID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("Failed to generate UUID: " + err.Error())
	}

	return id.String()
}

// 闭区间 [min, max] 内的随机时长
func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	return min + rand.N(max-min+1)
}

func coinFlip(probability float64) bool {
	return rand.Float64() < probability
}
