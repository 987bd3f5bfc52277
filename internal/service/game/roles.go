package game

import (
	"errors"
	"fmt"

	"turing-trap-be/internal/service/dto"
)

type Seat struct {
	ID        string
	Synthetic bool
}

// Assignment 席位 ID -> 角色
type Assignment map[string]dto.Character

// AssignRoles 把唯一的内鬼角色分给机器人席位，其余角色按剧本顺序依次分给按加入顺序排列的真人席位。
// 角色不足或内鬼数量不为 1 时返回已完成的部分分配以及 ErrDataIntegrity，
// 未分到角色的席位不会出现在结果中。
func AssignRoles(characters []dto.Character, seats []Seat) (Assignment, error) {
	var (
		impostors []dto.Character
		humans    []dto.Character
		faults    []error
	)

	for _, c := range characters {
		if c.IsImpostor {
			impostors = append(impostors, c)
		} else {
			humans = append(humans, c)
		}
	}

	if len(impostors) != 1 {
		faults = append(faults, fmt.Errorf("expected exactly one impostor, got %d", len(impostors)))
	}

	if len(characters) < len(seats) {
		faults = append(faults, fmt.Errorf("%d characters for %d seats", len(characters), len(seats)))
	}

	assignment := make(Assignment, len(seats))
	next := 0
	impostorTaken := false

	for _, seat := range seats {
		if seat.Synthetic {
			if len(impostors) > 0 && !impostorTaken {
				assignment[seat.ID] = impostors[0]
				impostorTaken = true
			} else {
				faults = append(faults, fmt.Errorf("no impostor role for synthetic seat %s", seat.ID))
			}
			continue
		}

		if next >= len(humans) {
			faults = append(faults, fmt.Errorf("no character for player %s", seat.ID))
			continue
		}

		assignment[seat.ID] = humans[next]
		next++
	}

	if len(faults) > 0 {
		return assignment, fmt.Errorf("%w: %w", ErrDataIntegrity, errors.Join(faults...))
	}

	return assignment, nil
}
