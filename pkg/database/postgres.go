package database

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

//go:embed schema.sql
var schemaSQL string

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) DatabaseInterface {
	db, err := openPostgres(dsn)
	if err != nil {
		panic(err.Error())
	}
	return &PostgresDatabase{db: db}
}

// openPostgres 依次尝试多种连接参数（解决 Vercel Lambda 的 IPv6 问题）
func openPostgres(dsn string) (*sql.DB, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	log := logging.L()
	var lastErr error

	for i, strategy := range strategies {
		db, err := sql.Open("postgres", strategy)
		if err != nil {
			log.Warn("❌ Postgres strategy failed to open", zap.Int("strategy", i+1), zap.Error(err))
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)

		if err = db.Ping(); err != nil {
			log.Warn("❌ Postgres strategy failed to ping", zap.Int("strategy", i+1), zap.Error(err))
			_ = db.Close()
			lastErr = err
			continue
		}

		log.Info("✅ PostgreSQL connection established", zap.Int("strategy", i+1))
		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// Migrate 执行内嵌的建表脚本（幂等）
func Migrate(dsn string) error {
	db, err := openPostgres(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SchemaTables 建表脚本创建的表
var SchemaTables = []string{
	"auth_users", "admins", "members", "social_media_post", "task_completions",
	"social_media_managers", "events", "products", "system_conf", "qr_link", "statistics",
}

// TableCounts 返回每张表的行数，用于迁移后的检查
func TableCounts(dsn string) (map[string]int, error) {
	db, err := openPostgres(dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	counts := make(map[string]int, len(SchemaTables))
	for _, table := range SchemaTables {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + pq.QuoteIdentifier(table)).Scan(&n); err != nil {
			return counts, fmt.Errorf("failed to query table %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// MaskDSN 隐藏连接字符串中的密码
func MaskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	if len(dsn) > 50 {
		return dsn[:20] + "***" + dsn[len(dsn)-20:]
	}
	if len(dsn) > 10 {
		return dsn[:10] + "***"
	}
	return "***"
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// mapPgError 把唯一约束冲突转换为领域错误
func mapPgError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "members_phone_key", "auth_users_email_key", "social_media_managers_phone_key":
		return models.ErrDuplicatePhone
	case "members_identity_card_key":
		return models.ErrDuplicateIdentityCard
	case "members_referrer_slot_key":
		return models.ErrDuplicateSlot
	case "task_completions_pkey":
		return models.ErrDuplicateCompletion
	}
	return err
}

// ================= 认证 =================

// CreateAuthUser 创建认证账号，访问码以 bcrypt 哈希保存
func (db *PostgresDatabase) CreateAuthUser(email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash access code: %w", err)
	}

	var id string
	err = db.db.QueryRow(
		`INSERT INTO auth_users (email, password_hash) VALUES (LOWER($1), $2) RETURNING id`,
		email, string(hash),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create auth user: %w", mapPgError(err))
	}
	return id, nil
}

// DeleteAuthUser 删除认证账号
func (db *PostgresDatabase) DeleteAuthUser(id string) error {
	_, err := db.db.Exec(`DELETE FROM auth_users WHERE id = $1`, id)
	return err
}

// AuthenticateMember 校验邮箱与访问码
func (db *PostgresDatabase) AuthenticateMember(email, accessCode string) (string, error) {
	var id, hash string
	err := db.db.QueryRow(`SELECT id, password_hash FROM auth_users WHERE email = LOWER($1)`, email).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return "", models.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to load auth user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(accessCode)) != nil {
		return "", models.ErrInvalidCredentials
	}
	return id, nil
}

// IsAdmin 检查 admins 表
func (db *PostgresDatabase) IsAdmin(userID string) (bool, error) {
	var exists bool
	err := db.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM admins WHERE id::text = $1)`, userID).Scan(&exists)
	return exists, err
}

// ================= 成员 =================

const memberColumns = `id, COALESCE(auth_id::text,''), name, email, phone, identity_card,
	to_char(birth_date, 'YYYY-MM-DD'), points, referrer_id::text, is_verified,
	locality, voting_place, voting_table, manager_phone, member_type, tier, id_slot,
	facebook_link, tiktok_link, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var m models.Member
	var birthDate, referrerID, managerPhone, facebook, tiktok sql.NullString
	var tier, slot sql.NullInt64

	err := row.Scan(&m.ID, &m.AuthID, &m.Name, &m.Email, &m.Phone, &m.IdentityCard,
		&birthDate, &m.Points, &referrerID, &m.IsVerified,
		&m.Locality, &m.VotingPlace, &m.VotingTable, &managerPhone, &m.MemberType, &tier, &slot,
		&facebook, &tiktok, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.BirthDate = nullString(birthDate)
	m.ReferrerID = nullString(referrerID)
	m.ManagerPhone = nullString(managerPhone)
	m.FacebookLink = nullString(facebook)
	m.TiktokLink = nullString(tiktok)
	m.Tier = nullInt(tier)
	m.SlotID = nullInt(slot)
	return &m, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// CreateMember 插入成员
func (db *PostgresDatabase) CreateMember(member *models.Member) error {
	query := `
		INSERT INTO members (id, auth_id, name, email, phone, identity_card, birth_date, points,
			referrer_id, is_verified, locality, voting_place, voting_table,
			manager_phone, member_type, tier, id_slot)
		VALUES ($1, NULLIF($2,'')::uuid, $3, $4, $5, $6, $7::date, 0, $8::uuid, $9, $10, $11, $12,
			$13, $14, $15, $16)
		RETURNING created_at
	`
	err := db.db.QueryRow(query,
		member.ID, member.AuthID, member.Name, member.Email, member.Phone, member.IdentityCard,
		member.BirthDate, member.ReferrerID, member.IsVerified,
		member.Locality, member.VotingPlace, member.VotingTable, member.ManagerPhone,
		member.MemberType, member.Tier, member.SlotID,
	).Scan(&member.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", mapPgError(err))
	}
	return nil
}

func (db *PostgresDatabase) getMember(where string, arg interface{}) (*models.Member, error) {
	m, err := scanMember(db.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// GetMemberByID 根据ID获取成员
func (db *PostgresDatabase) GetMemberByID(id string) (*models.Member, error) {
	return db.getMember("id::text = $1", id)
}

// GetMemberByPhone 根据手机号获取成员
func (db *PostgresDatabase) GetMemberByPhone(phone string) (*models.Member, error) {
	return db.getMember("phone = $1", phone)
}

// GetMemberByIdentityCard 根据证件号获取成员
func (db *PostgresDatabase) GetMemberByIdentityCard(identityCard string) (*models.Member, error) {
	return db.getMember("identity_card = $1", identityCard)
}

// UpdateMember 部分更新成员字段
func (db *PostgresDatabase) UpdateMember(id string, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		if !memberPatchColumns[k] {
			return fmt.Errorf("column %q cannot be updated", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	for i, k := range keys {
		cast := ""
		if k == "birth_date" {
			cast = "::date"
		}
		sets = append(sets, fmt.Sprintf("%s = $%d%s", k, i+1, cast))
		args = append(args, patch[k])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE members SET %s WHERE id::text = $%d", strings.Join(sets, ", "), len(args))
	res, err := db.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", mapPgError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteMember 删除成员及其认证账号
func (db *PostgresDatabase) DeleteMember(id string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM members WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM auth_users WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("failed to delete auth user: %w", err)
	}
	return tx.Commit()
}

// ListMembers 分页查询成员
func (db *PostgresDatabase) ListMembers(filter models.MemberFilter) ([]models.Member, int, error) {
	conds := []string{"TRUE"}
	args := []interface{}{}

	if name := strings.TrimSpace(filter.Name); name != "" {
		args = append(args, "%"+name+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if ci := strings.TrimSpace(filter.IdentityCard); ci != "" {
		args = append(args, "%"+ci+"%")
		conds = append(conds, fmt.Sprintf("identity_card ILIKE $%d", len(args)))
	}
	if phone := nonDigits.ReplaceAllString(filter.Phone, ""); phone != "" {
		args = append(args, phone)
		conds = append(conds, fmt.Sprintf("phone = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM members WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count members: %w", err)
	}

	from, to := filter.Range()
	args = append(args, to-from+1, from)
	query := fmt.Sprintf("SELECT %s FROM members WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		memberColumns, where, len(args)-1, len(args))

	members, err := db.queryMembers(query, args...)
	return members, total, err
}

// ListReferrals 推荐人名下成员，按创建时间升序
func (db *PostgresDatabase) ListReferrals(referrerID string) ([]models.Member, error) {
	return db.queryMembers(
		`SELECT `+memberColumns+` FROM members WHERE referrer_id::text = $1 ORDER BY created_at ASC`,
		referrerID,
	)
}

func (db *PostgresDatabase) queryMembers(query string, args ...interface{}) ([]models.Member, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	out := make([]models.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountMembers 成员总数
func (db *PostgresDatabase) CountMembers() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&n)
	return n, err
}

// SlotTaken 推荐名额是否已被占用
func (db *PostgresDatabase) SlotTaken(referrerID string, slot int) (bool, error) {
	var exists bool
	err := db.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM members WHERE referrer_id::text = $1 AND id_slot = $2)`,
		referrerID, slot,
	).Scan(&exists)
	return exists, err
}

// ================= 任务 =================

const taskColumns = `id, caption, description, points, thumbnail, link_url, deadline,
	scope_members, is_hidden, is_fixed, created_at`

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var deadline sql.NullTime
	if err := row.Scan(&t.ID, &t.Caption, &t.Description, &t.Points, &t.Thumbnail, &t.LinkURL,
		&deadline, &t.ScopeMembers, &t.IsHidden, &t.IsFixed, &t.CreatedAt); err != nil {
		return nil, err
	}
	if deadline.Valid {
		d := deadline.Time
		t.Deadline = &d
	}
	return &t, nil
}

func (db *PostgresDatabase) queryTasks(query string, args ...interface{}) ([]models.Task, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListTasks 管理端任务列表
func (db *PostgresDatabase) ListTasks(page, limit int) ([]models.Task, int, error) {
	var total int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM social_media_post`).Scan(&total); err != nil {
		return nil, 0, err
	}
	from, to := pageRange(page, limit)
	tasks, err := db.queryTasks(
		`SELECT `+taskColumns+` FROM social_media_post ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		to-from+1, from,
	)
	return tasks, total, err
}

// CreateTask 新建任务
func (db *PostgresDatabase) CreateTask(task *models.Task) error {
	query := `
		INSERT INTO social_media_post (caption, description, points, thumbnail, link_url, deadline,
			scope_members, is_hidden, is_fixed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	return db.db.QueryRow(query, task.Caption, task.Description, task.Points, task.Thumbnail,
		task.LinkURL, task.Deadline, task.ScopeMembers, task.IsHidden, task.IsFixed,
	).Scan(&task.ID, &task.CreatedAt)
}

// GetTask 按ID读取任务
func (db *PostgresDatabase) GetTask(id int64) (*models.Task, error) {
	t, err := scanTask(db.db.QueryRow(`SELECT `+taskColumns+` FROM social_media_post WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	return t, err
}

// SetTaskHidden 隐藏或显示任务
func (db *PostgresDatabase) SetTaskHidden(id int64, hidden bool) error {
	return db.execOne(`UPDATE social_media_post SET is_hidden = $1 WHERE id = $2`, hidden, id)
}

// ListAvailableTasks 成员可做的任务
func (db *PostgresDatabase) ListAvailableTasks(memberID string, now time.Time) ([]models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM social_media_post p
		WHERE NOT p.is_hidden
		  AND (p.deadline IS NULL OR p.deadline > $2)
		  AND (p.scope_members <= 0 OR (SELECT member_type FROM members WHERE id::text = $1) >= p.scope_members)
		  AND NOT EXISTS (
		      SELECT 1 FROM task_completions c WHERE c.post_id = p.id AND c.member_id::text = $1
		  )
		ORDER BY p.is_fixed DESC, p.created_at DESC
	`
	return db.queryTasks(query, memberID, now)
}

// CompleteTask 在一个事务内记录完成并加分
func (db *PostgresDatabase) CompleteTask(taskID int64, memberID string, points int) (int, error) {
	if points < 0 {
		points = 0
	}

	tx, err := db.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO task_completions (post_id, member_id, points)
		VALUES ($1, $2::uuid, $3)
		ON CONFLICT (post_id, member_id) DO NOTHING`, taskID, memberID, points)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return 0, models.ErrNotFound
		}
		return 0, fmt.Errorf("failed to record completion: %w", err)
	}

	var balance int
	if n, _ := res.RowsAffected(); n == 0 {
		if err := tx.QueryRow(`SELECT points FROM members WHERE id::text = $1`, memberID).Scan(&balance); err != nil {
			return 0, err
		}
		return balance, models.ErrDuplicateCompletion
	}

	if err := tx.QueryRow(`UPDATE members SET points = points + $1 WHERE id::text = $2 RETURNING points`,
		points, memberID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to credit points: %w", err)
	}
	return balance, tx.Commit()
}

// ================= 社交媒体负责人 =================

const managerColumns = `id, name, phone, team_size, is_hidden, total_miembros, created_at`

func (db *PostgresDatabase) queryManagers(query string, args ...interface{}) ([]models.SocialMediaManager, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query managers: %w", err)
	}
	defer rows.Close()

	out := make([]models.SocialMediaManager, 0)
	for rows.Next() {
		var m models.SocialMediaManager
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.TeamSize, &m.IsHidden, &m.TotalMembers, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListManagers 负责人分页列表
func (db *PostgresDatabase) ListManagers(page, limit int) ([]models.SocialMediaManager, int, error) {
	var total int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM social_media_managers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	from, to := pageRange(page, limit)
	managers, err := db.queryManagers(
		`SELECT `+managerColumns+` FROM view_managers_with_stats ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		to-from+1, from,
	)
	return managers, total, err
}

// ListActiveManagers 未隐藏的负责人
func (db *PostgresDatabase) ListActiveManagers() ([]models.SocialMediaManager, error) {
	return db.queryManagers(`SELECT ` + managerColumns + ` FROM view_managers_with_stats WHERE NOT is_hidden ORDER BY name`)
}

// CreateManager 新建负责人
func (db *PostgresDatabase) CreateManager(manager *models.SocialMediaManager) error {
	err := db.db.QueryRow(
		`INSERT INTO social_media_managers (name, phone, team_size, is_hidden) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		manager.Name, manager.Phone, manager.TeamSize, manager.IsHidden,
	).Scan(&manager.ID, &manager.CreatedAt)
	return mapPgError(err)
}

// SetManagerHidden 隐藏或显示负责人
func (db *PostgresDatabase) SetManagerHidden(id int64, hidden bool) error {
	return db.execOne(`UPDATE social_media_managers SET is_hidden = $1 WHERE id = $2`, hidden, id)
}

// ================= 活动 =================

// ListEvents 未删除的活动
func (db *PostgresDatabase) ListEvents() ([]models.Event, error) {
	rows, err := db.db.Query(`
		SELECT id, name, image_link, redirect_link, event_code, is_delete, created_at
		FROM events WHERE NOT is_delete ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := make([]models.Event, 0)
	for rows.Next() {
		var e models.Event
		var name, redirect, code sql.NullString
		if err := rows.Scan(&e.ID, &name, &e.ImageLink, &redirect, &code, &e.IsDelete, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Name, e.RedirectLink, e.EventCode = nullString(name), nullString(redirect), nullString(code)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEvent 新建活动
func (db *PostgresDatabase) CreateEvent(event *models.Event) error {
	return db.db.QueryRow(
		`INSERT INTO events (name, image_link, redirect_link, event_code) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		event.Name, event.ImageLink, event.RedirectLink, event.EventCode,
	).Scan(&event.ID, &event.CreatedAt)
}

// SetEventDeleted 软删除或恢复活动
func (db *PostgresDatabase) SetEventDeleted(id int64, deleted bool) error {
	return db.execOne(`UPDATE events SET is_delete = $1 WHERE id = $2`, deleted, id)
}

// ================= 商店、捐款与展示配置 =================

// ListProducts 商品列表
func (db *PostgresDatabase) ListProducts() ([]models.Product, error) {
	rows, err := db.db.Query(`SELECT id, title, description, price, image FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	out := make([]models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Image); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetSystemConf 全局配置
func (db *PostgresDatabase) GetSystemConf() (*models.SystemConf, error) {
	var c models.SystemConf
	err := db.db.QueryRow(`SELECT shop_whatsapp, current_event, points_event FROM system_conf LIMIT 1`).
		Scan(&c.ShopWhatsapp, &c.CurrentEvent, &c.PointsEvent)
	if err == sql.ErrNoRows {
		return &c, nil
	}
	return &c, err
}

// GetLatestDonationQR 最新的捐款二维码
func (db *PostgresDatabase) GetLatestDonationQR() (*models.DonationQR, error) {
	var qr models.DonationQR
	err := db.db.QueryRow(`SELECT id, url_image, comprobante FROM qr_link ORDER BY id DESC LIMIT 1`).
		Scan(&qr.ID, &qr.URLImage, &qr.Comprobante)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

// GetStatistics 成员进度展示配置
func (db *PostgresDatabase) GetStatistics() (*models.Statistics, error) {
	var s models.Statistics
	err := db.db.QueryRow(`SELECT fake_members_count, target_goal, trending FROM statistics LIMIT 1`).
		Scan(&s.FakeMembersCount, &s.TargetGoal, &s.Trending)
	if err == sql.ErrNoRows {
		return &s, nil
	}
	return &s, err
}

// execOne 执行更新并要求命中一行
func (db *PostgresDatabase) execOne(query string, args ...interface{}) error {
	res, err := db.db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
