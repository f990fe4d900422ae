// Package crawler duyệt toàn bộ repository công khai theo từng khoảng số sao.
// Mỗi khoảng được phân trang bằng cursor, thử lại khi lỗi, rồi ghi xuống sink ngay khi xong.
package crawler

import (
	"context"

	crawlinfo "github.com/thep200/github-star-sweeper/internal/crawl_info"
)

type Crawler interface {
	Crawl(ctx context.Context) (*crawlinfo.Summary, error)
}
