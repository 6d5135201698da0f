package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const createMemberQuery = "INSERT INTO environment_members (user_id, environment_id, role, is_muted, created_at) VALUES ($1, $2, $3, false, $4)"

func (db *PgDreamletRepository) CreateAccount(accountParams CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email",
		accountParams.Username,
		accountParams.EmailAddress,
		accountParams.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgDreamletRepository) UpdateAccount(accountParams UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email",
		accountParams.UserId,
		accountParams.Username,
		accountParams.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgDreamletRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
	)

	return user, err
}

func (db *PgDreamletRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)
	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
	)

	return user, err
}

// CreateEnvironment inserts the environment and its Lobby place in one
// transaction. No membership row is written for the owner; the owner role is
// derived from owner_id.
func (db *PgDreamletRepository) CreateEnvironment(params CreateEnvironmentParams) (Environment, error) {
	tagsJson, err := json.Marshal(params.Tags)
	if err != nil {
		return Environment{}, fmt.Errorf("marshal tags: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Environment{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO environments (name, owner_id, invite_code, is_locked, is_nsfw, difficulty, tags, created_at) "+
			"VALUES ($1, $2, $3, false, $4, $5, $6, $7) RETURNING id, name, owner_id, invite_code, is_locked, is_nsfw, difficulty, created_at",
		params.Name,
		params.OwnerId,
		params.InviteCode,
		params.IsNSFW,
		params.Difficulty,
		tagsJson,
		time.Now().UTC(),
	)

	var env Environment
	err = res.Scan(
		&env.Id,
		&env.Name,
		&env.OwnerId,
		&env.InviteCode,
		&env.IsLocked,
		&env.IsNSFW,
		&env.Difficulty,
		&env.CreatedAt,
	)
	if err != nil {
		return Environment{}, err
	}
	env.Tags = params.Tags

	_, err = tx.Exec(
		"INSERT INTO places (environment_id, name, emoji, parent_id, is_locked, created_at) "+
			"VALUES ($1, 'Lobby', '💬', NULL, false, $2)",
		env.Id,
		time.Now().UTC(),
	)
	if err != nil {
		return Environment{}, err
	}

	if err = tx.Commit(); err != nil {
		return Environment{}, err
	}

	return env, err
}

func (db *PgDreamletRepository) scanEnvironment(row *sql.Row) (Environment, error) {
	var env Environment
	var tagsJson []byte
	err := row.Scan(
		&env.Id,
		&env.Name,
		&env.OwnerId,
		&env.InviteCode,
		&env.IsLocked,
		&env.IsNSFW,
		&env.Difficulty,
		&tagsJson,
		&env.CreatedAt,
	)
	if err != nil {
		return Environment{}, err
	}

	if len(tagsJson) > 0 {
		if err := json.Unmarshal(tagsJson, &env.Tags); err != nil {
			return Environment{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}

	return env, nil
}

func (db *PgDreamletRepository) GetEnvironmentById(envId int) (Environment, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, owner_id, invite_code, is_locked, is_nsfw, difficulty, tags, created_at "+
			"FROM environments WHERE id = $1 LIMIT 1",
		envId,
	)

	return db.scanEnvironment(row)
}

func (db *PgDreamletRepository) GetEnvironmentByInviteCode(code string) (Environment, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, owner_id, invite_code, is_locked, is_nsfw, difficulty, tags, created_at "+
			"FROM environments WHERE invite_code = $1 LIMIT 1",
		code,
	)

	return db.scanEnvironment(row)
}

// ListEnvironmentsByUser returns environments the user owns or is a member of.
func (db *PgDreamletRepository) ListEnvironmentsByUser(userId int) ([]Environment, error) {
	rows, err := db.conn.Query(
		"SELECT e.id, e.name, e.owner_id, e.invite_code, e.is_locked, e.is_nsfw, e.difficulty, e.tags, e.created_at "+
			"FROM environments e LEFT JOIN environment_members m "+
			"ON m.environment_id = e.id AND m.user_id = $1 "+
			"WHERE e.owner_id = $1 OR m.user_id IS NOT NULL",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var envs []Environment
	for rows.Next() {
		var env Environment
		var tagsJson []byte
		if err = rows.Scan(&env.Id, &env.Name, &env.OwnerId, &env.InviteCode, &env.IsLocked,
			&env.IsNSFW, &env.Difficulty, &tagsJson, &env.CreatedAt); err != nil {
			break
		}

		if len(tagsJson) > 0 {
			if err = json.Unmarshal(tagsJson, &env.Tags); err != nil {
				break
			}
		}

		envs = append(envs, env)
	}

	return envs, err
}

func (db *PgDreamletRepository) SetEnvironmentLock(envId int, locked bool) error {
	_, err := db.conn.Exec("UPDATE environments SET is_locked = $1 WHERE id = $2", locked, envId)

	return err
}

func (db *PgDreamletRepository) DeleteEnvironment(envId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM environment_members WHERE environment_id = $1", envId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM environment_bans WHERE environment_id = $1", envId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM messages WHERE environment_id = $1", envId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM places WHERE environment_id = $1", envId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM environments WHERE id = $1", envId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgDreamletRepository) GetMemberRole(userId, envId int) (string, error) {
	row := db.conn.QueryRow(
		"SELECT role FROM environment_members WHERE user_id = $1 AND environment_id = $2 LIMIT 1",
		userId,
		envId,
	)

	var role string
	err := row.Scan(&role)

	return role, err
}

func (db *PgDreamletRepository) IsMuted(userId, envId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT is_muted FROM environment_members WHERE user_id = $1 AND environment_id = $2 LIMIT 1",
		userId,
		envId,
	)

	var muted bool
	err := row.Scan(&muted)

	return muted, err
}

func (db *PgDreamletRepository) ListMembers(envId int) ([]Member, error) {
	rows, err := db.conn.Query(
		"SELECT m.user_id, m.environment_id, a.username, m.role, m.is_muted FROM environment_members m "+
			"JOIN accounts a ON a.id = m.user_id WHERE m.environment_id = $1",
		envId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members = make([]Member, 0)
	for rows.Next() {
		var m Member
		if err = rows.Scan(&m.UserId, &m.EnvironmentId, &m.Username, &m.Role, &m.IsMuted); err != nil {
			break
		}

		members = append(members, m)
	}

	return members, err
}

func (db *PgDreamletRepository) AddMember(userId, envId int, role string) error {
	_, err := db.conn.Exec(createMemberQuery, userId, envId, role, time.Now().UTC())

	return err
}

func (db *PgDreamletRepository) RemoveMember(userId, envId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM environment_members WHERE user_id = $1 AND environment_id = $2",
		userId,
		envId,
	)

	return err
}

func (db *PgDreamletRepository) SetMemberRole(userId, envId int, role string) error {
	_, err := db.conn.Exec(
		"UPDATE environment_members SET role = $1 WHERE user_id = $2 AND environment_id = $3",
		role,
		userId,
		envId,
	)

	return err
}

func (db *PgDreamletRepository) ToggleMemberMute(userId, envId int) (bool, error) {
	row := db.conn.QueryRow(
		"UPDATE environment_members SET is_muted = NOT is_muted "+
			"WHERE user_id = $1 AND environment_id = $2 RETURNING is_muted",
		userId,
		envId,
	)

	var muted bool
	err := row.Scan(&muted)

	return muted, err
}

func (db *PgDreamletRepository) IsBanned(userId, envId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM environment_bans WHERE user_id = $1 AND environment_id = $2 LIMIT 1",
		userId,
		envId,
	)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *PgDreamletRepository) CreateBan(envId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO environment_bans (environment_id, user_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT DO NOTHING",
		envId,
		userId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgDreamletRepository) CreatePlace(params CreatePlaceParams) (Place, error) {
	res := db.conn.QueryRow(
		"INSERT INTO places (environment_id, name, emoji, parent_id, is_locked, created_at) "+
			"VALUES ($1, $2, $3, $4, false, $5) RETURNING id, environment_id, name, emoji, parent_id, is_locked, created_at",
		params.EnvironmentId,
		params.Name,
		params.Emoji,
		params.ParentId,
		time.Now().UTC(),
	)

	return scanPlaceRow(res)
}

func scanPlaceRow(row *sql.Row) (Place, error) {
	var place Place
	var parentId sql.NullInt64
	err := row.Scan(
		&place.Id,
		&place.EnvironmentId,
		&place.Name,
		&place.Emoji,
		&parentId,
		&place.IsLocked,
		&place.CreatedAt,
	)
	if parentId.Valid {
		pid := int(parentId.Int64)
		place.ParentId = &pid
	}

	return place, err
}

func (db *PgDreamletRepository) GetPlaceById(placeId int) (Place, error) {
	row := db.conn.QueryRow(
		"SELECT id, environment_id, name, emoji, parent_id, is_locked, created_at FROM places "+
			"WHERE id = $1 LIMIT 1",
		placeId,
	)

	return scanPlaceRow(row)
}

func (db *PgDreamletRepository) ListPlaces(envId int) ([]Place, error) {
	rows, err := db.conn.Query(
		"SELECT id, environment_id, name, emoji, parent_id, is_locked, created_at FROM places "+
			"WHERE environment_id = $1 ORDER BY parent_id NULLS FIRST, id",
		envId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var places = make([]Place, 0)
	for rows.Next() {
		var place Place
		var parentId sql.NullInt64
		if err = rows.Scan(&place.Id, &place.EnvironmentId, &place.Name, &place.Emoji,
			&parentId, &place.IsLocked, &place.CreatedAt); err != nil {
			break
		}

		if parentId.Valid {
			pid := int(parentId.Int64)
			place.ParentId = &pid
		}

		places = append(places, place)
	}

	return places, err
}

func (db *PgDreamletRepository) UpdatePlace(params UpdatePlaceParams) error {
	_, err := db.conn.Exec(
		"UPDATE places SET name = $1, emoji = $2, parent_id = $3 WHERE id = $4",
		params.Name,
		params.Emoji,
		params.ParentId,
		params.PlaceId,
	)

	return err
}

func (db *PgDreamletRepository) SetPlaceLock(placeId int, locked bool) error {
	_, err := db.conn.Exec("UPDATE places SET is_locked = $1 WHERE id = $2", locked, placeId)

	return err
}

func (db *PgDreamletRepository) DeletePlace(placeId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM messages WHERE place_id = $1", placeId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM places WHERE id = $1", placeId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// CreateMessage is the single durable write of the message pipeline. The
// returned row carries the id and timestamp that fix the message's order.
func (db *PgDreamletRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (environment_id, place_id, user_id, content, kind, action_subtype, dice_count, dice_sides, dice_rolls, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10) RETURNING id, created_at",
		params.EnvironmentId,
		params.PlaceId,
		params.UserId,
		params.Content,
		params.Kind,
		params.ActionSubtype,
		params.DiceCount,
		params.DiceSides,
		encodeRolls(params.DiceRolls),
		time.Now().UTC(),
	)

	msg := Message{
		EnvironmentId: params.EnvironmentId,
		PlaceId:       params.PlaceId,
		UserId:        params.UserId,
		Content:       params.Content,
		Kind:          params.Kind,
		ActionSubtype: params.ActionSubtype,
		DiceCount:     params.DiceCount,
		DiceSides:     params.DiceSides,
		DiceRolls:     params.DiceRolls,
	}
	err := res.Scan(&msg.Id, &msg.CreatedAt)

	return msg, err
}

// GetRecentMessages returns the most recent limit messages for the room in
// chronological order. A nil placeId selects lobby messages.
func (db *PgDreamletRepository) GetRecentMessages(envId int, placeId *int, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT m.id, m.environment_id, m.place_id, m.user_id, a.username, m.content, m.kind, " +
		"COALESCE(m.action_subtype, ''), COALESCE(m.dice_count, 0), COALESCE(m.dice_sides, 0), COALESCE(m.dice_rolls, ''), m.created_at " +
		"FROM messages m JOIN accounts a ON a.id = m.user_id " +
		"WHERE m.environment_id = $1 AND "
	args := []any{envId}
	if placeId != nil {
		query += "m.place_id = $2 "
		args = append(args, *placeId)
	} else {
		query += "m.place_id IS NULL "
	}
	query += fmt.Sprintf("ORDER BY m.created_at DESC, m.id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		var pid sql.NullInt64
		var rolls string
		if err = rows.Scan(&msg.Id, &msg.EnvironmentId, &pid, &msg.UserId, &msg.Username, &msg.Content,
			&msg.Kind, &msg.ActionSubtype, &msg.DiceCount, &msg.DiceSides, &rolls, &msg.CreatedAt); err != nil {
			break
		}

		if pid.Valid {
			p := int(pid.Int64)
			msg.PlaceId = &p
		}
		msg.DiceRolls = decodeRolls(rolls)

		messages = append(messages, msg)
	}
	if err != nil {
		return nil, err
	}

	// query is newest-first; flip to chronological
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func encodeRolls(rolls []int) string {
	parts := make([]string, len(rolls))
	for i, r := range rolls {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ",")
}

func decodeRolls(s string) []int {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	rolls := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		rolls = append(rolls, n)
	}
	return rolls
}
