package contract

// Observer: 诊断输出旁路，不属于数据契约。
// Probe 在每次探测前调用；Page 在每次成功读页后调用。
// 返回错误将终止当前扫描。
type Observer interface {
	Probe(path string) error
	Page(ev PageReadEvent) error
}

// NopObserver 丢弃全部事件。
type NopObserver struct{}

func (NopObserver) Probe(string) error       { return nil }
func (NopObserver) Page(PageReadEvent) error { return nil }

// MultiObserver 按顺序转发给多个观察者；首错返回。
type MultiObserver []Observer

func (m MultiObserver) Probe(path string) error {
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.Probe(path); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiObserver) Page(ev PageReadEvent) error {
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.Page(ev); err != nil {
			return err
		}
	}
	return nil
}
