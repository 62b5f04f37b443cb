package linear

// Option configures a Ridge model.
type Option func(*Ridge)

// WithAlpha sets the L2 penalty. Zero gives ordinary least squares.
func WithAlpha(alpha float64) Option {
	return func(r *Ridge) {
		r.Alpha = alpha
	}
}

// WithFitIntercept sets whether to calculate the intercept
func WithFitIntercept(fit bool) Option {
	return func(r *Ridge) {
		r.FitIntercept = fit
	}
}
