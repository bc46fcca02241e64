package compose

// Kind selects the template family.
type Kind string

const (
	KindNew       Kind = "new_tool"
	KindTrending  Kind = "trending_tool"
	KindSpotlight Kind = "category_spotlight"
)

var templateSources = map[Kind][]string{
	KindNew: {
		"🚀 New #{{.Topic}} tool: {{.Name}}\n\n{{.Description}}\n\n⭐ {{.Stars}} stars\n🔗 {{.URL}}\n\n{{.Tags}} #DevOps #CloudNative",
		"📢 Discover {{.Name}} - a new #{{.Topic}} tool!\n\n✨ {{.Description}}\n\n👉 {{.URL}}\n⭐ {{.Stars}} GitHub stars\n\n{{.Tags}} #DevOps",
		"🎯 {{.Name}} just joined the #{{.Topic}} ecosystem!\n\n{{.Description}}\n\n🌟 {{.Stars}} stars and growing\n📦 {{.URL}}\n\n{{.Tags}} #CloudNative",
		"⚡ Fresh #{{.Topic}} tool alert: {{.Name}}\n\n{{.Description}}\n\n✅ {{.Stars}} GitHub stars\n🔧 {{.URL}}\n\n{{.Tags}} #OpenSource",
		"🔥 Hot new #{{.Topic}} tool: {{.Name}}\n\n{{.Short}}\n\n💫 {{.Stars}} stars\n📋 {{.URL}}\n\n{{.Tags}} #DevOps",
		"🛠️ Meet {{.Name}}: {{.Short}}\n\nPerfect for your #{{.Topic}} toolkit!\n\n⭐ {{.Stars}} stars\n🚀 {{.URL}}\n\n{{.Tags}}",
		"🎉 {{.Name}} is now part of the #{{.Collection}} collection!\n\n{{.Description}}\n\n🌟 {{.Stars}} GitHub stars\n📖 {{.URL}}\n\n{{.Tags}}",
		"💡 Introducing {{.Name}}: {{.Short}}\n\nGreat addition to the #{{.Topic}} ecosystem!\n\n⭐ {{.Stars}} stars\n🔗 {{.URL}}\n\n{{.Tags}}",
	},
	KindTrending: {
		"📈 Trending: {{.Name}} is gaining momentum in the #{{.Topic}} community!\n\n{{.Description}}\n\n🚀 {{.Stars}} stars\n👀 {{.URL}}\n\n{{.Tags}} #DevOps",
		"🔥 {{.Name}} is on fire!\n\n{{.Description}}\n\n⭐ {{.Stars}} stars and counting\n📦 {{.URL}}\n\n{{.Tags}} #Trending",
	},
	KindSpotlight: {
		"{{.Emoji}} #{{.Category}} spotlight: {{.Name}}\n\n{{.Description}}\n\n✨ {{.Stars}} stars\n🔗 {{.URL}}\n\n{{.Tags}} #DevOps",
		"🔍 Featured #{{.Category}} tool: {{.Name}}\n\n{{.Description}}\n\n⭐ {{.Stars}} GitHub stars\n📋 {{.URL}}\n\n{{.Tags}}",
	},
}

const fallbackSource = "🚀 New #{{.Topic}} tool: {{.Name}}\n\n⭐ {{.Stars}} stars\n🔗 {{.URL}}\n\n#DevOps #CloudNative"

const defaultCategory = "general"

var hashtags = map[string][]string{
	"monitoring":  {"#Monitoring", "#Observability", "#Metrics", "#AlertManager"},
	"security":    {"#Security", "#DevSecOps", "#K8sSecurity", "#PolicyEngine"},
	"networking":  {"#Networking", "#ServiceMesh", "#Ingress", "#CNI"},
	"storage":     {"#Storage", "#PersistentVolumes", "#StatefulSets", "#Backup"},
	"development": {"#Development", "#DevTools", "#LocalDev", "#InnerLoop"},
	"debugging":   {"#Debugging", "#Troubleshooting", "#Logging", "#Tracing"},
	"deployment":  {"#Deployment", "#Helm", "#Operators", "#GitOps"},
	"cluster":     {"#ClusterManagement", "#NodeManagement", "#Infrastructure"},
	"ai":          {"#AI", "#MachineLearning", "#MLOps", "#KubeFlow"},
	"general":     {"#Tools", "#Utilities", "#Productivity"},
	"cicd":        {"#CICD", "#Pipeline", "#Automation", "#GitOps"},
	"testing":     {"#Testing", "#QA", "#ChaosEngineering"},
	"backup":      {"#Backup", "#DisasterRecovery", "#DataProtection"},
	"cost":        {"#CostOptimization", "#FinOps", "#ResourceManagement"},
}

var emojis = map[string][]string{
	"monitoring":  {"📊", "📈", "👀", "🔍", "📡"},
	"security":    {"🔒", "🛡️", "🔐", "🚨", "⚡"},
	"networking":  {"🌐", "🔗", "📡", "🌉", "📶"},
	"storage":     {"💾", "📦", "🗄️", "💿", "📚"},
	"development": {"💻", "🛠️", "⚙️", "🔧"},
	"debugging":   {"🐛", "🔍", "🕵️", "📋", "🩺"},
	"deployment":  {"🚀", "📦", "🎯", "⚡", "🔄"},
	"cluster":     {"🏗️", "🖥️", "⚙️", "🔧", "🏭"},
	"ai":          {"🤖", "🧠", "⚡", "🎯", "🔮"},
	"general":     {"🛠️", "⚙️", "🔧", "📦", "✨"},
	"cicd":        {"🔄", "⚡", "🚀", "📦", "🎯"},
	"testing":     {"🧪", "✅", "🔬", "🎯", "⚡"},
	"backup":      {"💾", "🔄", "📦", "💿", "🛡️"},
	"cost":        {"💰", "📊", "📉", "⚡", "🎯"},
}
