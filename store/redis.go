/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis keeps roster and rooms in Redis so they survive process restarts
// and can be shared by workers serving the same chat user. The roster is a
// hash of user id to JSON contact, rooms are a set.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedis creates a Redis store with keys under prefix, e.g. "qb:chat:42".
func NewRedis(rdb redis.Cmdable, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *Redis) rosterKey() string { return r.prefix + ":roster" }
func (r *Redis) roomsKey() string  { return r.prefix + ":rooms" }

func (r *Redis) Contact(ctx context.Context, userID int) (Contact, bool, error) {
	raw, err := r.rdb.HGet(ctx, r.rosterKey(), strconv.Itoa(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, fmt.Errorf("error reading contact %d: %w", userID, err)
	}
	var c Contact
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Contact{}, false, fmt.Errorf("error decoding contact %d: %w", userID, err)
	}
	return c, true, nil
}

func (r *Redis) SetContact(ctx context.Context, userID int, contact Contact) error {
	data, err := json.Marshal(contact)
	if err != nil {
		return err
	}
	if err := r.rdb.HSet(ctx, r.rosterKey(), strconv.Itoa(userID), string(data)).Err(); err != nil {
		return fmt.Errorf("error writing contact %d: %w", userID, err)
	}
	return nil
}

func (r *Redis) DeleteContact(ctx context.Context, userID int) error {
	if err := r.rdb.HDel(ctx, r.rosterKey(), strconv.Itoa(userID)).Err(); err != nil {
		return fmt.Errorf("error deleting contact %d: %w", userID, err)
	}
	return nil
}

func (r *Redis) Roster(ctx context.Context) (Roster, error) {
	raw, err := r.rdb.HGetAll(ctx, r.rosterKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading roster: %w", err)
	}
	out := make(Roster, len(raw))
	for field, value := range raw {
		id, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var c Contact
		if err := json.Unmarshal([]byte(value), &c); err != nil {
			return nil, fmt.Errorf("error decoding contact %s: %w", field, err)
		}
		out[id] = c
	}
	return out, nil
}

// ReplaceRoster deletes the hash and writes every contact, ids ascending,
// in one MULTI/EXEC so readers never see a partial roster.
func (r *Redis) ReplaceRoster(ctx context.Context, roster Roster) error {
	ids := make([]int, 0, len(roster))
	for id := range roster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	args := make([]interface{}, 0, 2*len(ids))
	for _, id := range ids {
		data, err := json.Marshal(roster[id])
		if err != nil {
			return err
		}
		args = append(args, strconv.Itoa(id), string(data))
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.rosterKey())
		if len(args) > 0 {
			pipe.HSet(ctx, r.rosterKey(), args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error replacing roster: %w", err)
	}
	return nil
}

func (r *Redis) AddRoom(ctx context.Context, roomJID string) error {
	if err := r.rdb.SAdd(ctx, r.roomsKey(), roomJID).Err(); err != nil {
		return fmt.Errorf("error adding room %s: %w", roomJID, err)
	}
	return nil
}

func (r *Redis) RemoveRoom(ctx context.Context, roomJID string) error {
	if err := r.rdb.SRem(ctx, r.roomsKey(), roomJID).Err(); err != nil {
		return fmt.Errorf("error removing room %s: %w", roomJID, err)
	}
	return nil
}

// Rooms returns the joined rooms sorted.
func (r *Redis) Rooms(ctx context.Context) ([]string, error) {
	rooms, err := r.rdb.SMembers(ctx, r.roomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading rooms: %w", err)
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (r *Redis) ClearRooms(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.roomsKey()).Err(); err != nil {
		return fmt.Errorf("error clearing rooms: %w", err)
	}
	return nil
}

func (r *Redis) Reset(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.rosterKey(), r.roomsKey()).Err(); err != nil {
		return fmt.Errorf("error resetting store: %w", err)
	}
	return nil
}
