package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
	"github.com/pvtclawn/swarm-verifier/internal/swarm"
)

// ErrVerificationNotFound 表示指定的验证记录不存在。
var ErrVerificationNotFound = xerrors.New(xerrors.CodeNotFound, "验证记录不存在")

// ErrVerificationExists 表示验证记录已写入。记录不可变，一经写入不允许覆盖。
var ErrVerificationExists = xerrors.New(xerrors.CodeConflict, "验证记录已存在")

// MemoryVerificationRepository 使用本地 JSON 追加日志保存验证记录，便于迭代开发与测试。
type MemoryVerificationRepository struct {
	mu       sync.RWMutex
	dataFile string
	byID     map[string]*swarm.Verification
}

// NewMemoryVerificationRepository 创建一个内存验证仓库。
func NewMemoryVerificationRepository(dataDir string) (*MemoryVerificationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryVerificationRepository{
		dataFile: filepath.Join(dataDir, "verifications.log"),
		byID:     make(map[string]*swarm.Verification),
	}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录一次验证，重复 ID 视为冲突。
func (m *MemoryVerificationRepository) Save(_ context.Context, v *swarm.Verification) error {
	if v == nil || v.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "验证记录缺少 ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[v.ID]; ok {
		return ErrVerificationExists
	}

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开验证日志失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(v)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化验证记录失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入验证日志失败")
	}

	clone := cloneVerification(v)
	m.byID[v.ID] = clone
	return nil
}

// Get 按 ID 返回验证记录。
func (m *MemoryVerificationRepository) Get(_ context.Context, id string) (*swarm.Verification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.byID[id]
	if !ok {
		return nil, ErrVerificationNotFound
	}
	return cloneVerification(v), nil
}

func (m *MemoryVerificationRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取验证日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var v swarm.Verification
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			continue
		}
		if v.ID != "" {
			m.byID[v.ID] = cloneVerification(&v)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析验证日志失败: %w", err)
	}
	return nil
}

func cloneVerification(v *swarm.Verification) *swarm.Verification {
	clone := *v
	clone.Agents = append([]swarm.Agent(nil), v.Agents...)
	clone.Responses = append([]swarm.ChallengeResponse(nil), v.Responses...)
	return &clone
}

// SQLVerificationRepository 使用真实的 MySQL 数据库存储验证记录。
type SQLVerificationRepository struct {
	db *sql.DB
}

// NewSQLVerificationRepository 创建连接池并初始化数据表。
func NewSQLVerificationRepository(dsn string) (*SQLVerificationRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	repo := &SQLVerificationRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *SQLVerificationRepository) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS verifications (
        id VARCHAR(64) PRIMARY KEY,
        challenge_id VARCHAR(64) NOT NULL,
        overall INT NOT NULL,
        verdict VARCHAR(16) NOT NULL,
        responded INT NOT NULL,
        agent_count INT NOT NULL,
        scores JSON NOT NULL,
        timing JSON NOT NULL,
        agents JSON NOT NULL,
        responses JSON NOT NULL,
        attestation VARCHAR(255) DEFAULT '',
        created_at BIGINT NOT NULL,
        INDEX idx_created_at (created_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化 verifications 表失败: %w", err)
	}
	return nil
}

// Save 将验证记录写入 MySQL。主键冲突时返回冲突错误，记录不可覆盖。
func (s *SQLVerificationRepository) Save(ctx context.Context, v *swarm.Verification) error {
	if v == nil || v.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "验证记录缺少 ID")
	}

	scores, err := json.Marshal(v.Scores)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化子分失败")
	}
	timing, err := json.Marshal(v.Timing)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化时延统计失败")
	}
	agents, err := json.Marshal(v.Agents)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化智能体列表失败")
	}
	responses, err := json.Marshal(v.Responses)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化应答列表失败")
	}

	const stmt = `INSERT INTO verifications
        (id, challenge_id, overall, verdict, responded, agent_count, scores, timing, agents, responses, attestation, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		v.ID,
		v.ChallengeID,
		v.Overall,
		string(v.Verdict),
		v.Responded,
		len(v.Agents),
		scores,
		timing,
		agents,
		responses,
		v.Attestation,
		v.CreatedAt.Unix(),
	); err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrVerificationExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 MySQL 失败")
	}
	return nil
}

// Get 按 ID 查询验证记录。
func (s *SQLVerificationRepository) Get(ctx context.Context, id string) (*swarm.Verification, error) {
	const query = `SELECT id, challenge_id, overall, verdict, responded, scores, timing, agents, responses, attestation, created_at
        FROM verifications WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var (
		v         swarm.Verification
		verdict   string
		scores    []byte
		timing    []byte
		agents    []byte
		responses []byte
		createdAt int64
	)
	if err := row.Scan(&v.ID, &v.ChallengeID, &v.Overall, &verdict, &v.Responded, &scores, &timing, &agents, &responses, &v.Attestation, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrVerificationNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询验证记录失败")
	}

	v.Verdict = swarm.Verdict(verdict)
	v.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal(scores, &v.Scores); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析子分失败")
	}
	if err := json.Unmarshal(timing, &v.Timing); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析时延统计失败")
	}
	if err := json.Unmarshal(agents, &v.Agents); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析智能体列表失败")
	}
	if err := json.Unmarshal(responses, &v.Responses); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析应答列表失败")
	}
	return &v, nil
}

// Close 释放数据库连接。
func (s *SQLVerificationRepository) Close() error {
	return s.db.Close()
}
