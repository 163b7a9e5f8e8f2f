package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
)

const defaultContentType = "application/octet-stream"

var errEmptyKey = errors.New("empty object key")

// objectKeys 生成 <prefix>/<category>/<yyyy>/<mm>/<dd>/<base>.<ext> 形式的对象 key
type objectKeys struct {
	prefix string
	now    func() time.Time
}

func newObjectKeys(prefix string) objectKeys {
	return objectKeys{prefix: strings.Trim(strings.TrimSpace(prefix), "/"), now: time.Now}
}

func (k objectKeys) build(opts SaveOptions) string {
	now := k.now().UTC()
	category := cleanToken(opts.Category)
	if category == "" {
		category = "misc"
	}
	ext := cleanToken(strings.TrimPrefix(strings.TrimSpace(opts.Extension), "."))
	if ext == "" {
		ext = "bin"
	}
	base := strings.Trim(cleanToken(strings.ReplaceAll(opts.BaseName, " ", "-")), "-_")
	if base == "" {
		base = fmt.Sprintf("%d", now.UnixNano())
	}
	key := path.Join(category, now.Format("2006/01/02"), base+"."+ext)
	if k.prefix == "" {
		return key
	}
	return path.Join(k.prefix, key)
}

// cleanToken 只保留小写字母、数字、'-' 和 '_'
func cleanToken(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r > unicode.MaxASCII:
			return -1
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return unicode.ToLower(r)
		default:
			return -1
		}
	}, strings.TrimSpace(value))
}

// normalizeKey 去掉首尾空白与前导斜杠，空 key 报错
func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errEmptyKey
	}
	return key, nil
}

func contentTypeOf(opts SaveOptions) string {
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		return ct
	}
	return defaultContentType
}

// checkSave 校验写入参数，ctx 已取消时不再发起请求
func checkSave(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	return ctx.Err()
}
