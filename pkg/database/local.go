package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LocalDatabase 本地数据库实现：内存数据，配置了数据目录时同步写入JSON文件
type LocalDatabase struct {
	dataDir string
	mu      sync.RWMutex
	state   localState
}

type localAuthUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

type localState struct {
	AuthUsers   map[string]localAuthUser    `json:"auth_users"`
	Admins      map[string]bool             `json:"admins"`
	Members     []models.Member             `json:"members"`
	Tasks       []models.Task               `json:"tasks"`
	Completions []models.TaskCompletion     `json:"completions"`
	Managers    []models.SocialMediaManager `json:"managers"`
	Events      []models.Event              `json:"events"`
	Products    []models.Product            `json:"products"`
	SystemConf  models.SystemConf           `json:"system_conf"`
	DonationQRs []models.DonationQR         `json:"donation_qrs"`
	Statistics  models.Statistics           `json:"statistics"`
	NextID      int64                       `json:"next_id"`
}

var nonDigits = regexp.MustCompile(`\D`)

// NewLocalDatabase 创建本地数据库实例。dataDir 为空时只保存在内存中
func NewLocalDatabase(dataDir string) *LocalDatabase {
	db := &LocalDatabase{
		dataDir: dataDir,
		state: localState{
			AuthUsers:   map[string]localAuthUser{},
			Admins:      map[string]bool{},
			NextID:      1,
		},
	}

	if dataDir == "" {
		return db
	}

	// 在只读文件系统中退回临时目录
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logging.L().Warn("Failed to create data directory, using temp dir", zap.String("dir", dataDir), zap.Error(err))
		db.dataDir = filepath.Join(os.TempDir(), "xsch-data")
		if err := os.MkdirAll(db.dataDir, 0o755); err != nil {
			logging.L().Warn("Failed to create temp data directory, keeping data in memory", zap.Error(err))
			db.dataDir = ""
			return db
		}
	}

	if err := db.load(); err != nil {
		logging.L().Warn("Failed to load local data, starting empty", zap.Error(err))
	}
	return db
}

// ================= 认证 =================

// CreateAuthUser 创建认证账号，访问码以 bcrypt 哈希保存
func (db *LocalDatabase) CreateAuthUser(email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash access code: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.state.AuthUsers {
		if strings.EqualFold(u.Email, email) {
			return "", models.ErrDuplicatePhone
		}
	}

	id := uuid.New().String()
	db.state.AuthUsers[id] = localAuthUser{ID: id, Email: strings.ToLower(email), PasswordHash: string(hash)}
	return id, db.persist()
}

// DeleteAuthUser 删除认证账号
func (db *LocalDatabase) DeleteAuthUser(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.state.AuthUsers, id)
	return db.persist()
}

// AuthenticateMember 校验邮箱与访问码
func (db *LocalDatabase) AuthenticateMember(email, accessCode string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.state.AuthUsers {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(accessCode)) != nil {
			return "", models.ErrInvalidCredentials
		}
		return u.ID, nil
	}
	return "", models.ErrInvalidCredentials
}

// IsAdmin 检查 admins 表
func (db *LocalDatabase) IsAdmin(userID string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.state.Admins[userID], nil
}

// AddAdmin 把用户加入管理员名单
func (db *LocalDatabase) AddAdmin(userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.Admins[userID] = true
	return db.persist()
}

// ================= 成员 =================

// CreateMember 插入成员，手机号、证件号与推荐名额唯一
func (db *LocalDatabase) CreateMember(member *models.Member) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, m := range db.state.Members {
		if m.Phone == member.Phone {
			return models.ErrDuplicatePhone
		}
		if member.IdentityCard != "" && m.IdentityCard == member.IdentityCard {
			return models.ErrDuplicateIdentityCard
		}
		if sameSlot(m, member) {
			return models.ErrDuplicateSlot
		}
	}

	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	member.Points = 0
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}

	db.state.Members = append(db.state.Members, *member)
	return db.persist()
}

func sameSlot(a models.Member, b *models.Member) bool {
	if a.ReferrerID == nil || b.ReferrerID == nil || a.SlotID == nil || b.SlotID == nil {
		return false
	}
	return *a.ReferrerID == *b.ReferrerID && *a.SlotID == *b.SlotID
}

// GetMemberByID 根据ID获取成员
func (db *LocalDatabase) GetMemberByID(id string) (*models.Member, error) {
	return db.findMember(func(m models.Member) bool { return m.ID == id })
}

// GetMemberByPhone 根据手机号获取成员
func (db *LocalDatabase) GetMemberByPhone(phone string) (*models.Member, error) {
	return db.findMember(func(m models.Member) bool { return m.Phone == phone })
}

// GetMemberByIdentityCard 根据证件号获取成员
func (db *LocalDatabase) GetMemberByIdentityCard(identityCard string) (*models.Member, error) {
	return db.findMember(func(m models.Member) bool { return m.IdentityCard == identityCard })
}

func (db *LocalDatabase) findMember(match func(models.Member) bool) (*models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, m := range db.state.Members {
		if match(m) {
			out := m
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// UpdateMember 部分更新成员字段
func (db *LocalDatabase) UpdateMember(id string, patch map[string]interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.memberIndex(id)
	if idx < 0 {
		return models.ErrNotFound
	}

	// 通过JSON往返应用补丁，字段名与数据库列一致
	current, err := json.Marshal(db.state.Members[idx])
	if err != nil {
		return err
	}
	var row map[string]interface{}
	if err := json.Unmarshal(current, &row); err != nil {
		return err
	}
	for k, v := range patch {
		if !memberPatchColumns[k] {
			return fmt.Errorf("column %q cannot be updated", k)
		}
		row[k] = v
	}
	merged, err := json.Marshal(row)
	if err != nil {
		return err
	}
	var updated models.Member
	if err := json.Unmarshal(merged, &updated); err != nil {
		return fmt.Errorf("invalid member patch: %w", err)
	}

	db.state.Members[idx] = updated
	return db.persist()
}

// DeleteMember 删除成员及其认证账号
func (db *LocalDatabase) DeleteMember(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.memberIndex(id)
	if idx < 0 {
		return models.ErrNotFound
	}
	db.state.Members = append(db.state.Members[:idx], db.state.Members[idx+1:]...)
	delete(db.state.AuthUsers, id)
	return db.persist()
}

func (db *LocalDatabase) memberIndex(id string) int {
	for i, m := range db.state.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// ListMembers 分页查询成员：姓名与证件号模糊匹配，手机号只比较数字，按创建时间倒序
func (db *LocalDatabase) ListMembers(filter models.MemberFilter) ([]models.Member, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	name := strings.ToLower(strings.TrimSpace(filter.Name))
	ci := strings.ToLower(strings.TrimSpace(filter.IdentityCard))
	phone := nonDigits.ReplaceAllString(filter.Phone, "")

	matched := make([]models.Member, 0)
	for i := len(db.state.Members) - 1; i >= 0; i-- {
		m := db.state.Members[i]
		if name != "" && !strings.Contains(strings.ToLower(m.Name), name) {
			continue
		}
		if ci != "" && !strings.Contains(strings.ToLower(m.IdentityCard), ci) {
			continue
		}
		if phone != "" && m.Phone != phone {
			continue
		}
		matched = append(matched, m)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	from, to := filter.Range()
	return pageOf(matched, from, to), len(matched), nil
}

// ListReferrals 推荐人名下成员，按创建时间升序
func (db *LocalDatabase) ListReferrals(referrerID string) ([]models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.Member, 0)
	for _, m := range db.state.Members {
		if m.ReferrerID != nil && *m.ReferrerID == referrerID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CountMembers 成员总数
func (db *LocalDatabase) CountMembers() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.state.Members), nil
}

// SlotTaken 推荐名额是否已被占用
func (db *LocalDatabase) SlotTaken(referrerID string, slot int) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	probe := &models.Member{ReferrerID: &referrerID, SlotID: &slot}
	for _, m := range db.state.Members {
		if sameSlot(m, probe) {
			return true, nil
		}
	}
	return false, nil
}

// ================= 任务 =================

// ListTasks 管理端任务列表，按创建时间倒序
func (db *LocalDatabase) ListTasks(page, limit int) ([]models.Task, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tasks := make([]models.Task, 0, len(db.state.Tasks))
	for i := len(db.state.Tasks) - 1; i >= 0; i-- {
		tasks = append(tasks, db.state.Tasks[i])
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })

	from, to := pageRange(page, limit)
	return pageOf(tasks, from, to), len(tasks), nil
}

// CreateTask 新建任务
func (db *LocalDatabase) CreateTask(task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	task.ID = db.nextID()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	db.state.Tasks = append(db.state.Tasks, *task)
	return db.persist()
}

// GetTask 按ID读取任务
func (db *LocalDatabase) GetTask(id int64) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, t := range db.state.Tasks {
		if t.ID == id {
			out := t
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// SetTaskHidden 隐藏或显示任务
func (db *LocalDatabase) SetTaskHidden(id int64, hidden bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i := range db.state.Tasks {
		if db.state.Tasks[i].ID == id {
			db.state.Tasks[i].IsHidden = hidden
			return db.persist()
		}
	}
	return models.ErrNotFound
}

// ListAvailableTasks 成员可做的任务：固定任务优先，其余按创建时间倒序
func (db *LocalDatabase) ListAvailableTasks(memberID string, now time.Time) ([]models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var member *models.Member
	for i := range db.state.Members {
		if db.state.Members[i].ID == memberID {
			member = &db.state.Members[i]
			break
		}
	}
	if member == nil {
		return nil, models.ErrNotFound
	}

	done := map[int64]bool{}
	for _, c := range db.state.Completions {
		if c.MemberID == memberID {
			done[c.PostID] = true
		}
	}

	out := make([]models.Task, 0)
	for i := len(db.state.Tasks) - 1; i >= 0; i-- {
		t := db.state.Tasks[i]
		if t.IsHidden || done[t.ID] || t.ExpiredAt(now) || !t.VisibleTo(member.MemberType) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsFixed != out[j].IsFixed {
			return out[i].IsFixed
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CompleteTask 记录任务完成并加分（同一成员同一任务只记一次）
func (db *LocalDatabase) CompleteTask(taskID int64, memberID string, points int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	found := false
	for _, t := range db.state.Tasks {
		if t.ID == taskID {
			found = true
			break
		}
	}
	idx := db.memberIndex(memberID)
	if !found || idx < 0 {
		return 0, models.ErrNotFound
	}

	for _, c := range db.state.Completions {
		if c.PostID == taskID && c.MemberID == memberID {
			return db.state.Members[idx].Points, models.ErrDuplicateCompletion
		}
	}

	if points < 0 {
		points = 0
	}
	db.state.Completions = append(db.state.Completions, models.TaskCompletion{
		PostID:      taskID,
		MemberID:    memberID,
		Points:      points,
		CompletedAt: time.Now().UTC(),
	})
	db.state.Members[idx].Points += points
	return db.state.Members[idx].Points, db.persist()
}

// ================= 社交媒体负责人 =================

// ListManagers 负责人分页列表，附带名下成员数
func (db *LocalDatabase) ListManagers(page, limit int) ([]models.SocialMediaManager, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	all := db.managersWithStats(false)
	from, to := pageRange(page, limit)
	return pageOf(all, from, to), len(all), nil
}

// ListActiveManagers 未隐藏的负责人
func (db *LocalDatabase) ListActiveManagers() ([]models.SocialMediaManager, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.managersWithStats(true), nil
}

func (db *LocalDatabase) managersWithStats(activeOnly bool) []models.SocialMediaManager {
	counts := map[string]int{}
	for _, m := range db.state.Members {
		if m.ManagerPhone != nil {
			counts[*m.ManagerPhone]++
		}
	}

	out := make([]models.SocialMediaManager, 0, len(db.state.Managers))
	for i := len(db.state.Managers) - 1; i >= 0; i-- {
		mgr := db.state.Managers[i]
		if activeOnly && mgr.IsHidden {
			continue
		}
		mgr.TotalMembers = counts[mgr.Phone]
		out = append(out, mgr)
	}
	return out
}

// CreateManager 新建负责人
func (db *LocalDatabase) CreateManager(manager *models.SocialMediaManager) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, m := range db.state.Managers {
		if m.Phone == manager.Phone {
			return models.ErrDuplicatePhone
		}
	}
	manager.ID = db.nextID()
	if manager.CreatedAt.IsZero() {
		manager.CreatedAt = time.Now().UTC()
	}
	db.state.Managers = append(db.state.Managers, *manager)
	return db.persist()
}

// SetManagerHidden 隐藏或显示负责人
func (db *LocalDatabase) SetManagerHidden(id int64, hidden bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i := range db.state.Managers {
		if db.state.Managers[i].ID == id {
			db.state.Managers[i].IsHidden = hidden
			return db.persist()
		}
	}
	return models.ErrNotFound
}

// ================= 活动 =================

// ListEvents 未删除的活动，按创建时间倒序
func (db *LocalDatabase) ListEvents() ([]models.Event, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.Event, 0)
	for i := len(db.state.Events) - 1; i >= 0; i-- {
		if !db.state.Events[i].IsDelete {
			out = append(out, db.state.Events[i])
		}
	}
	return out, nil
}

// CreateEvent 新建活动
func (db *LocalDatabase) CreateEvent(event *models.Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	event.ID = db.nextID()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	db.state.Events = append(db.state.Events, *event)
	return db.persist()
}

// SetEventDeleted 软删除或恢复活动
func (db *LocalDatabase) SetEventDeleted(id int64, deleted bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i := range db.state.Events {
		if db.state.Events[i].ID == id {
			db.state.Events[i].IsDelete = deleted
			return db.persist()
		}
	}
	return models.ErrNotFound
}

// ================= 商店、捐款与展示配置 =================

// ListProducts 商品列表
func (db *LocalDatabase) ListProducts() ([]models.Product, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]models.Product(nil), db.state.Products...), nil
}

// AddProduct 添加商品
func (db *LocalDatabase) AddProduct(p *models.Product) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p.ID = db.nextID()
	db.state.Products = append(db.state.Products, *p)
	return db.persist()
}

// GetSystemConf 全局配置
func (db *LocalDatabase) GetSystemConf() (*models.SystemConf, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	conf := db.state.SystemConf
	return &conf, nil
}

// SetSystemConf 设置全局配置
func (db *LocalDatabase) SetSystemConf(conf models.SystemConf) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.SystemConf = conf
	return db.persist()
}

// GetLatestDonationQR 最新的捐款二维码
func (db *LocalDatabase) GetLatestDonationQR() (*models.DonationQR, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(db.state.DonationQRs) == 0 {
		return nil, models.ErrNotFound
	}
	qr := db.state.DonationQRs[len(db.state.DonationQRs)-1]
	return &qr, nil
}

// AddDonationQR 追加捐款二维码
func (db *LocalDatabase) AddDonationQR(qr *models.DonationQR) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	qr.ID = db.nextID()
	db.state.DonationQRs = append(db.state.DonationQRs, *qr)
	return db.persist()
}

// GetStatistics 成员进度展示配置
func (db *LocalDatabase) GetStatistics() (*models.Statistics, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	stats := db.state.Statistics
	return &stats, nil
}

// SetStatistics 设置成员进度展示配置
func (db *LocalDatabase) SetStatistics(stats models.Statistics) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.Statistics = stats
	return db.persist()
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck() error {
	if db.dataDir == "" {
		return nil
	}
	if _, err := os.Stat(db.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", db.dataDir)
	}
	return nil
}

// Close 关闭连接（本地数据库无需关闭）
func (db *LocalDatabase) Close() error {
	return nil
}

// 私有辅助方法

func (db *LocalDatabase) nextID() int64 {
	id := db.state.NextID
	db.state.NextID++
	return id
}

func (db *LocalDatabase) dataFilePath() string {
	return filepath.Join(db.dataDir, "xsch.json")
}

func (db *LocalDatabase) load() error {
	data, err := os.ReadFile(db.dataFilePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var st localState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.AuthUsers == nil {
		st.AuthUsers = map[string]localAuthUser{}
	}
	if st.Admins == nil {
		st.Admins = map[string]bool{}
	}
	if st.NextID < 1 {
		st.NextID = 1
	}
	db.state = st
	return nil
}

// persist 写入数据文件（调用方持有写锁）
func (db *LocalDatabase) persist() error {
	if db.dataDir == "" {
		return nil
	}

	data, err := json.MarshalIndent(db.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := db.dataFilePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, db.dataFilePath())
}

// pageRange 把页码换算为 [from, to] 区间
func pageRange(page, limit int) (int, int) {
	p, l := models.NormalizePage(page, limit)
	from := (p - 1) * l
	return from, from + l - 1
}

func pageOf[T any](items []T, from, to int) []T {
	if from >= len(items) {
		return []T{}
	}
	if to >= len(items) {
		to = len(items) - 1
	}
	return items[from : to+1]
}
