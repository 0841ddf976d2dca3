package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-git/go-billy/v5"

	"pagescan/internal/diag"
	"pagescan/pkg/contract"
)

// - 单线程：记录逐条处理，页逐个探测；不起并发。
// - 记录级错误（ErrPageIO、被拒记录）写入汇总后继续下一条；其余错误即刻中止。
// - 清单不可用时在任何探测之前返回 ErrManifestUnavailable。

// Components 聚合运行所需的原子组件。
type Components struct {
	// ManifestFS: 清单所在文件系统；Settings.Manifest 为其中的名称。
	ManifestFS billy.Filesystem
	Manifest   contract.ManifestFormat
	Scanner    contract.PageScanner
	// Observer: 诊断输出；nil 表示不输出。
	Observer contract.Observer
	// Writer: 运行报告输出；nil 表示不写报告。
	Writer contract.Writer
	// Ledger: 运行历史；nil 表示不记录。
	Ledger Ledger
}

// Ledger 持久化一次运行的汇总。
type Ledger interface {
	RecordRun(ctx context.Context, s Summary) error
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Manifest: ManifestFS 中的清单名称。
	Manifest string
	// ManifestLabel: 汇总与日志中展示的清单路径；空则使用 Manifest。
	ManifestLabel string
	// MaxRecords: 请求的记录上限；<=0 表示读到清单末尾。
	MaxRecords int
	// RunID: 运行标识；空则取 logger 的关联 ID。
	RunID string
}

// RecordScan: 单条记录的处理结果。
type RecordScan struct {
	Seq    int    `json:"seq"`
	Folder string `json:"folder,omitempty"`
	Stem   string `json:"stem,omitempty"`
	contract.ScanResult
	DurMS int64  `json:"dur_ms"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Failed 报告该记录是否以错误结束。
func (r RecordScan) Failed() bool { return r.Error != "" }

// Summary: 一次运行的汇总（报告与历史的数据源）。
type Summary struct {
	RunID      string              `json:"run_id"`
	Manifest   string              `json:"manifest"`
	MaxRecords int                 `json:"max_records"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Records    []RecordScan        `json:"records"`
	Totals     contract.ScanResult `json:"totals"`
	Failed     int                 `json:"failed"`
	// Fatal: 中止运行的错误（若有）。
	Fatal string `json:"fatal,omitempty"`
}

// ReportID 返回该运行报告的工件名。
func (s Summary) ReportID() contract.ArtifactID {
	return contract.ArtifactID("pagescan-" + s.RunID + ".json")
}

// Run 执行：打开清单 → 逐条读取记录 → 逐页扫描 → 汇总 →（可选）历史与报告。
// 返回值：
// - 致命错误：原样返回（清单不可用、取消、观察者写失败、清单读失败）；
// - 否则：所有记录级错误的 errors.Join（无则 nil）。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Summary, error) {
	if err := sanity(comp, set); err != nil {
		return Summary{}, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = diag.Discard()
	}
	label := set.ManifestLabel
	if label == "" {
		label = set.Manifest
	}
	sum := Summary{RunID: set.RunID, Manifest: label, MaxRecords: set.MaxRecords, StartedAt: time.Now().UTC()}
	if sum.RunID == "" {
		sum.RunID = logger.CorrID()
	}

	mtimer := logger.StartWithKV("manifest", "open", "", map[string]string{"path": label})
	f, err := comp.ManifestFS.Open(contract.NormalizePath(set.Manifest))
	if err != nil {
		err = fmt.Errorf("%w: open %q: %w", contract.ErrManifestUnavailable, label, err)
		logger.Error("manifest", string(diag.Classify(err)), err.Error(), nil)
		diag.IncOp("manifest", "error", "error")
		diag.IncError("manifest", string(diag.CodeManifest))
		return sum, err
	}
	defer f.Close()
	mr := comp.Manifest.NewReader(f)

	term := diag.GetTerminal()
	term.RunStart(label, set.MaxRecords)
	runStart := time.Now()

	obs := comp.Observer
	if obs == nil {
		obs = contract.NopObserver{}
	}

	var recErrs []error
	var fatal error
	for set.MaxRecords <= 0 || len(sum.Records) < set.MaxRecords {
		rec, err := mr.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		seq := len(sum.Records) + 1
		if err != nil {
			if !contract.IsRecordError(err) {
				fatal = fmt.Errorf("manifest next: %w", err)
				break
			}
			// 被拒记录占用一个记录名额
			code := diag.Classify(err)
			logger.ErrorWith("manifest", string(code), err.Error(), nil, "", 0)
			diag.IncOp("manifest", "reject", "error")
			diag.IncError("manifest", string(code))
			sum.Records = append(sum.Records, RecordScan{Seq: seq, Code: string(code), Error: err.Error()})
			recErrs = append(recErrs, err)
			continue
		}

		rs, err := scanRecord(ctx, comp.Scanner, obs, logger, seq, rec)
		sum.Records = append(sum.Records, rs)
		sum.Totals = sum.Totals.Add(rs.ScanResult)
		if err != nil {
			if !contract.IsRecordError(err) {
				fatal = err
				break
			}
			recErrs = append(recErrs, fmt.Errorf("record %d %s/%s: %w", seq, rec.Folder, rec.Stem, err))
		}
		if fl, ok := obs.(interface{ Flush() error }); ok {
			if err := fl.Flush(); err != nil {
				fatal = fmt.Errorf("observer flush: %w", err)
				break
			}
		}
	}
	if fatal == nil {
		if fl, ok := obs.(interface{ Flush() error }); ok {
			if err := fl.Flush(); err != nil {
				fatal = fmt.Errorf("observer flush: %w", err)
			}
		}
	}

	sum.FinishedAt = time.Now().UTC()
	for _, r := range sum.Records {
		if r.Failed() {
			sum.Failed++
		}
	}
	if fatal != nil {
		sum.Fatal = fatal.Error()
		code := diag.Classify(fatal)
		logger.Error("pipeline", string(code), fatal.Error(), &runStart)
		diag.IncError("pipeline", string(code))
	}
	mtimer.Finish("records", int64(len(sum.Records)))
	term.RunFinish(fatal == nil && sum.Failed == 0, time.Since(runStart))

	// 历史与报告不受运行取消影响
	if perr := persist(context.WithoutCancel(ctx), comp, sum, logger); perr != nil && fatal == nil {
		fatal = perr
		sum.Fatal = perr.Error()
	}
	logger.InfoFinish("pipeline", "run", runStart, int64(sum.Totals.Pages))
	logger.Debug("pipeline", "metrics", diag.SnapshotKV())
	if fatal != nil {
		return sum, fatal
	}
	return sum, errors.Join(recErrs...)
}

// scanRecord 扫描单条记录并生成 RecordScan；返回 Scan 的原始错误。
func scanRecord(ctx context.Context, sc contract.PageScanner, obs contract.Observer, logger *diag.Logger, seq int, rec contract.ManifestRecord) (RecordScan, error) {
	name := rec.Folder + "/" + rec.Stem
	term := diag.GetTerminal()
	term.RecordStart(seq, rec.Folder, rec.Stem)
	timer := logger.StartWith("scanner", "scan", name)

	tap := &progress{logger: logger, term: term, record: name}
	res, err := sc.Scan(ctx, rec, contract.MultiObserver{obs, tap})
	rs := RecordScan{Seq: seq, Folder: rec.Folder, Stem: rec.Stem, ScanResult: res, DurMS: timer.Elapsed().Milliseconds()}
	if err != nil {
		code := diag.Classify(err)
		rs.Code = string(code)
		rs.Error = err.Error()
		// 失败页为已读页之后的下一页
		logger.ErrorWith("scanner", string(code), err.Error(), nil, name, res.Pages+1)
		diag.IncOp("scanner", "record", "error")
		diag.IncError("scanner", string(code))
		term.RecordFinish(false, res.Pages, timer.Elapsed())
		return rs, err
	}
	timer.Finish("pages", int64(res.Pages))
	diag.IncOp("scanner", "record", "success")
	term.RecordFinish(true, res.Pages, timer.Elapsed())
	return rs, nil
}

// progress 将页事件旁路到日志与终端。
type progress struct {
	logger *diag.Logger
	term   *diag.Terminal
	record string
	pages  int
}

func (p *progress) Probe(string) error { return nil }

func (p *progress) Page(ev contract.PageReadEvent) error {
	p.pages++
	p.term.RecordProgress(p.pages)
	if ev.Short {
		p.logger.WarnWith("scanner", "short_page", fmt.Sprintf("%s: %d bytes", ev.Path, len(ev.Data)), p.record, int(ev.Index))
	}
	return nil
}

// persist 写入历史与报告；两者都尝试，错误合并返回。
func persist(ctx context.Context, comp Components, sum Summary, logger *diag.Logger) error {
	var errs []error
	if comp.Ledger != nil {
		t := logger.Start("ledger", "record run")
		if err := comp.Ledger.RecordRun(ctx, sum); err != nil {
			logger.Error("ledger", string(diag.Classify(err)), err.Error(), nil)
			diag.IncOp("ledger", "error", "error")
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		} else {
			t.Finish("record run", int64(len(sum.Records)))
			diag.IncOp("ledger", "finish", "success")
		}
	}
	if comp.Writer != nil {
		t := logger.Start("writer", "report")
		b, err := json.MarshalIndent(sum, "", "  ")
		if err == nil {
			err = comp.Writer.Write(ctx, sum.ReportID(), bytes.NewReader(b))
		}
		if err != nil {
			logger.Error("writer", string(diag.Classify(err)), err.Error(), nil)
			diag.IncOp("writer", "error", "error")
			errs = append(errs, fmt.Errorf("report: %w", err))
		} else {
			t.Finish("report", int64(len(b)))
			diag.IncOp("writer", "finish", "success")
		}
	}
	return errors.Join(errs...)
}

func sanity(c Components, s Settings) error {
	if c.ManifestFS == nil || c.Manifest == nil || c.Scanner == nil {
		return errors.New("pipeline: missing components")
	}
	if s.Manifest == "" {
		return errors.New("pipeline: empty manifest path")
	}
	return nil
}
