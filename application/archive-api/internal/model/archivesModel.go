package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/yanshicheng/archive-nova/common/vars"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ ArchivesModel = (*customArchivesModel)(nil)

type (
	// ArchivesModel is an interface to be customized, add more methods here,
	// and implement the added methods in customArchivesModel.
	ArchivesModel interface {
		archivesModel
		// InsertOnce 按 file_id 幂等写入，existed 表示记录已存在
		InsertOnce(ctx context.Context, data *Archives) (id int64, existed bool, err error)
		ListRecent(ctx context.Context, page, pageSize uint64) ([]*Archives, uint64, error)
		ListPending(ctx context.Context, before time.Time, limit int) ([]*Archives, error)
		UpdateArtifacts(ctx context.Context, id int64, fileId, thumbnailId, status string) error
	}

	customArchivesModel struct {
		*defaultArchivesModel
	}
)

// NewArchivesModel returns a model for the database table.
func NewArchivesModel(conn sqlx.SqlConn) ArchivesModel {
	return &customArchivesModel{
		defaultArchivesModel: newArchivesModel(conn),
	}
}

func (m *customArchivesModel) InsertOnce(ctx context.Context, data *Archives) (int64, bool, error) {
	var (
		id      int64
		existed bool
	)
	err := m.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		var existing Archives
		query := fmt.Sprintf("select %s from %s where `file_id` = ? limit 1", archivesRows, m.table)
		err := session.QueryRowCtx(ctx, &existing, query, data.FileId)
		switch {
		case err == nil:
			id, existed = existing.Id, true
			return nil
		case !errors.Is(err, sqlx.ErrNotFound):
			return err
		}

		insert := fmt.Sprintf("insert into %s (%s) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", m.table, archivesRowsExpectAutoSet)
		ret, err := session.ExecCtx(ctx, insert, data.Title, data.Author, data.Year, data.Topic, data.Keywords,
			data.Summary, data.FileId, data.ThumbnailId, data.UploadDate, data.Downloads, data.Status)
		if err != nil {
			return err
		}
		id, err = ret.LastInsertId()
		return err
	})
	if err != nil && isDuplicateEntry(err) {
		// 并发写入同一 file_id，以先写入者为准
		existing, ferr := m.FindOneByFileId(ctx, data.FileId)
		if ferr != nil {
			return 0, false, ferr
		}
		return existing.Id, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, existed, nil
}

func (m *customArchivesModel) ListRecent(ctx context.Context, page, pageSize uint64) ([]*Archives, uint64, error) {
	if page < 1 {
		page = vars.Page
	}
	if pageSize < 1 {
		pageSize = vars.PageSize
	}

	var total uint64
	countQuery := fmt.Sprintf("select count(*) from %s", m.table)
	if err := m.conn.QueryRowCtx(ctx, &total, countQuery); err != nil {
		return nil, 0, err
	}

	list := make([]*Archives, 0)
	if total == 0 {
		return list, 0, nil
	}

	query := fmt.Sprintf("select %s from %s order by `%s` %s, `id` %s limit ? offset ?",
		archivesRows, m.table, vars.OrderField, vars.OrderType, vars.OrderType)
	if err := m.conn.QueryRowsCtx(ctx, &list, query, pageSize, (page-1)*pageSize); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (m *customArchivesModel) ListPending(ctx context.Context, before time.Time, limit int) ([]*Archives, error) {
	if limit <= 0 {
		limit = 50
	}
	list := make([]*Archives, 0)
	query := fmt.Sprintf("select %s from %s where `status` = ? and `upload_date` < ? order by `id` limit ?", archivesRows, m.table)
	if err := m.conn.QueryRowsCtx(ctx, &list, query, StatusProcessing, before, limit); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *customArchivesModel) UpdateArtifacts(ctx context.Context, id int64, fileId, thumbnailId, status string) error {
	var thumb any
	if thumbnailId != "" {
		thumb = thumbnailId
	}
	query := fmt.Sprintf("update %s set `file_id` = ?, `thumbnail_id` = ?, `status` = ? where `id` = ?", m.table)
	_, err := m.conn.ExecCtx(ctx, query, fileId, thumb, status, id)
	return err
}

// isDuplicateEntry 仅识别 MySQL 1062，其他驱动的唯一键冲突按普通错误返回
func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
