package bundle

// ProgressFunc 阶段完成回调，pct 为 0..100
type ProgressFunc func(stage string, pct int)

type runOptions struct {
	progress ProgressFunc
}

// Option 单次生成参数
type Option func(*runOptions)

// WithProgress 注册进度回调
func WithProgress(fn ProgressFunc) Option {
	return func(o *runOptions) {
		o.progress = fn
	}
}

func applyOptions(opts []Option) runOptions {
	var ro runOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&ro)
		}
	}
	return ro
}

func (o runOptions) report(stage string, pct int) {
	if o.progress != nil {
		o.progress(stage, pct)
	}
}
