package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"cropinv/pkg/contract"
)

// DefaultNAValues: 视为缺失的单元格文本（精确匹配，去除首尾空白后比较）。
var DefaultNAValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a", "nan", "null",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options 为 CSV 表解码器的可选配置。
type Options struct {
	// Comma: 字段分隔符（单字符），默认 ","。
	Comma string `json:"comma"`
	// NAValues: 额外的缺失值记号。
	NAValues []string `json:"na_values"`
	// KeepDefaultNA=false 时仅使用 NAValues。nil 视为 true。
	KeepDefaultNA *bool `json:"keep_default_na"`
}

// Decoder 实现 contract.TableDecoder。
type Decoder struct {
	comma rune
	na    map[string]struct{}
}

var _ contract.TableDecoder = (*Decoder)(nil)

// New 创建解码器；Comma 非单字符时返回 ErrInvalidInput。
func New(opts *Options) (*Decoder, error) {
	d := &Decoder{comma: ',', na: make(map[string]struct{})}
	keepDefault := true
	if opts != nil {
		if opts.Comma != "" {
			r, size := utf8.DecodeRuneInString(opts.Comma)
			if size != len(opts.Comma) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
				return nil, fmt.Errorf("table csv: comma %q: %w", opts.Comma, contract.ErrInvalidInput)
			}
			d.comma = r
		}
		if opts.KeepDefaultNA != nil {
			keepDefault = *opts.KeepDefaultNA
		}
		for _, v := range opts.NAValues {
			d.na[strings.TrimSpace(v)] = struct{}{}
		}
	}
	if keepDefault {
		for _, v := range DefaultNAValues {
			d.na[v] = struct{}{}
		}
	}
	return d, nil
}

// Decode 逐行解码并回调 yield。
// 行级问题：字段多于表头、孤立引号 → Row.Err（ErrRowInvalid）；字段少于表头时缺失列按 NA 处理。
// 文件级问题：空文件、表头为空、编码非 UTF-8、引号未闭合 → ErrFileInvalid。
func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader, yield func(row contract.Row) error) error {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(len(utf8BOM)); bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.Comma = d.comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return fmt.Errorf("%s: empty file: %w", fileID, contract.ErrFileInvalid)
	}
	if err != nil {
		return fmt.Errorf("%s: header: %v: %w", fileID, err, contract.ErrFileInvalid)
	}
	cols, err := headerNames(header)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", fileID, err, contract.ErrFileInvalid)
	}

	for n := 0; ; n++ {
		if n%256 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrBareQuote) {
				if yerr := yield(contract.Row{Line: pe.StartLine, Err: fmt.Errorf("%s: %v: %w", fileID, err, contract.ErrRowInvalid)}); yerr != nil {
					return yerr
				}
				continue
			}
			return fmt.Errorf("%s: %v: %w", fileID, err, contract.ErrFileInvalid)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		if len(rec) > len(cols) {
			err := fmt.Errorf("%s: line %d: expected %d fields, saw %d: %w", fileID, line, len(cols), len(rec), contract.ErrRowInvalid)
			if yerr := yield(contract.Row{Line: line, Err: err}); yerr != nil {
				return yerr
			}
			continue
		}
		values := make(contract.RawRow, len(rec))
		for i, v := range rec {
			if !utf8.ValidString(v) {
				return fmt.Errorf("%s: line %d: invalid utf-8: %w", fileID, line, contract.ErrFileInvalid)
			}
			if d.isNA(v) {
				continue
			}
			values[cols[i]] = v
		}
		if err := yield(contract.Row{Line: line, Values: values}); err != nil {
			return err
		}
	}
}

func (d *Decoder) isNA(v string) bool {
	_, ok := d.na[strings.TrimSpace(v)]
	return ok
}

// headerNames 去空白；重复列名依次追加 .1、.2 …；空列名记为 Unnamed: i。
func headerNames(header []string) ([]string, error) {
	if len(header) == 0 || (len(header) == 1 && strings.TrimSpace(header[0]) == "") {
		return nil, errors.New("empty header")
	}
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		if !utf8.ValidString(h) {
			return nil, errors.New("invalid utf-8 in header")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for k := 1; used[name]; k++ {
			name = h + "." + strconv.Itoa(k)
		}
		used[name] = true
		out[i] = name
	}
	return out, nil
}
